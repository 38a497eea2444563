package server

import "net/http"

type serverEntry struct {
	Name        string   `json:"name"`
	Endpoint    string   `json:"endpoint"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

var serverCatalog = []serverEntry{
	{
		Name:        "execution_agent",
		Endpoint:    "/execute-agent",
		Description: "Executes buy and sell orders against the connected brokerage account.",
		Tools:       []string{"get_balance", "get_holdings", "execute_buy", "execute_sell", "get_stock_price", "validate_trade"},
	},
	{
		Name:        "market_research_agent",
		Endpoint:    "/market-research-agent",
		Description: "Answers market and instrument research questions.",
		Tools:       []string{"get_stock_price", "get_stock_change", "get_company_by_symbol", "get_bulk_prices", "predict_next_close"},
	},
	{
		Name:        "portfolio_manager_agent",
		Endpoint:    "/portfolio-manager-agent",
		Description: "Analyzes current portfolio composition, balance and preferences.",
		Tools:       []string{"get_dashboard", "get_balance", "get_preferences", "get_portfolio_history"},
	},
	{
		Name:        "investment_strategy_agent",
		Endpoint:    "/investment-strategy-agent",
		Description: "Builds investment strategies from portfolio, preferences and recent activity.",
		Tools:       []string{"get_dashboard", "get_preferences", "get_transactions"},
	},
	{
		Name:        "general_agent",
		Endpoint:    "/general-agent",
		Description: "General financial assistant for everything not covered by a specialist.",
		Tools:       []string{},
	},
}

func (s *Server) handleServerCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": serverCatalog})
}
