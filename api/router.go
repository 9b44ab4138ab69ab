package api

import (
	"net/http"

	"github.com/0xcafe-io/iz"
	"github.com/rs/cors"
)

var corsConf = cors.New(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Authorization", "Content-Type"},
	AllowCredentials: true,
})

// Routes registers every endpoint and wraps the mux in CORS. A nil
// metricsHandler leaves /metrics unregistered.
func (api *Api) Routes(metricsHandler http.Handler) http.Handler {
	server := http.NewServeMux()

	// USER ENDPOINTS.
	server.HandleFunc("POST /api/register", iz.Bind(api.SaveUserHandler)) // Create User
	server.HandleFunc("POST /api/login", iz.Bind(api.LoginUserHandler))   // Login User
	server.HandleFunc("GET /api/logout", iz.Bind(api.LogoutUserHandler))  // Logout User
	server.HandleFunc("GET /api/account", iz.Bind(api.GetAccountHandler)) // Account Info

	// TRANSACTION ENDPOINTS.
	server.HandleFunc("POST /api/transaction", iz.Bind(api.SaveTransactionHandler)) // Create Transaction
	server.HandleFunc("GET /api/transaction", iz.Bind(api.GetTransactionsHandler))  // Get Transactions with filters

	// CATEGORY ENDPOINTS.
	server.HandleFunc("POST /api/category", iz.Bind(api.SaveCategoryHandler)) // Create Category
	server.HandleFunc("GET /api/category", iz.Bind(api.GetCategoriesHandler)) // List Categories

	// BUDGET ENDPOINTS.
	server.HandleFunc("PUT /api/budget", iz.Bind(api.UpdateBudgetHandler))               // Set monthly budget and thresholds
	server.HandleFunc("PUT /api/preferences", iz.Bind(api.UpdatePreferencesHandler))     // Report preferences
	server.HandleFunc("GET /api/budget/status", iz.Bind(api.GetBudgetStatusHandler))     // Current month status
	server.HandleFunc("GET /api/budget/overview", iz.Bind(api.GetBudgetOverviewHandler)) // Status with category breakdown
	server.HandleFunc("POST /api/budget/alert", iz.Bind(api.CheckBudgetAlertHandler))    // Check and notify now

	// REPORT ENDPOINTS.
	server.HandleFunc("GET /api/report", iz.Bind(api.GetReportHandler))        // Report data, ?month=YYYY-MM
	server.HandleFunc("POST /api/report/send", iz.Bind(api.SendReportHandler)) // Email report now
	server.HandleFunc("GET /api/report/download", api.DownloadReportHandler)   // Rendered report file

	// NOTIFICATION ENDPOINTS.
	server.HandleFunc("GET /api/notification", iz.Bind(api.GetNotificationsHandler)) // Alert history

	if metricsHandler != nil {
		server.Handle("GET /metrics", metricsHandler)
	}

	return corsConf.Handler(server)
}
