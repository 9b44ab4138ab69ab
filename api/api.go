package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/0xcafe-io/iz"
	appErrors "github.com/fatali-fataliyev/budget_watch/customErrors"
	"github.com/fatali-fataliyev/budget_watch/internal/auth"
	"github.com/fatali-fataliyev/budget_watch/internal/budget"
	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/internal/render"
	"github.com/fatali-fataliyev/budget_watch/internal/services"
	"github.com/fatali-fataliyev/budget_watch/logging"
)

type Api struct {
	Service *budget.BudgetTracker
	Alerts  *services.AlertService
	Reports *services.ReportService
}

func NewApi(service *budget.BudgetTracker, alerts *services.AlertService, reports *services.ReportService) *Api {
	return &Api{
		Service: service,
		Alerts:  alerts,
		Reports: reports,
	}
}

func fail(ctx context.Context, action string, err error) iz.Responder {
	status := httpStatusFromError(err)
	if status == http.StatusInternalServerError {
		logging.Logger.Errorf("[TraceID=%s] | failed to %s | Error: %v", contextutil.TraceIDFromContext(ctx), action, err)
	}
	return iz.Respond().Status(status).JSON(errorBody(err))
}

func badRequest(format string, args ...any) iz.Responder {
	return iz.Respond().Status(http.StatusBadRequest).JSON(appErrors.New(appErrors.ErrInvalidInput, format, args...))
}

// authorize resolves the session token to a user id. A non-nil Responder
// means the request is rejected.
func (api *Api) authorize(r *iz.Request) (context.Context, string, iz.Responder) {
	ctx := contextutil.NewTraceContext(r.Context())

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return ctx, "", iz.Respond().Status(http.StatusUnauthorized).JSON(appErrors.New(appErrors.ErrAuth, "Authorization header is required."))
	}
	ctx = context.WithValue(ctx, contextutil.Token, token)

	userId, err := api.Service.CheckSession(ctx, token)
	if err != nil {
		if appErrors.CodeOf(err) == appErrors.ErrInternal {
			return ctx, "", fail(ctx, "check session", err)
		}
		return ctx, "", iz.Respond().Status(http.StatusUnauthorized).JSON(errorBody(err))
	}
	return ctx, userId, nil
}

// --- USERS --- //

func (api *Api) SaveUserHandler(r *iz.Request) iz.Responder {
	ctx := contextutil.NewTraceContext(r.Context())

	var newUserReq SaveUserRequest
	if err := json.NewDecoder(r.Body).Decode(&newUserReq); err != nil {
		return badRequest("invalid request body: %s", err.Error())
	}

	newUser := auth.NewUser{
		UserName:      newUserReq.UserName,
		FullName:      newUserReq.FullName,
		PasswordPlain: newUserReq.Password,
		Email:         newUserReq.Email,
	}

	token, err := api.Service.SaveUser(ctx, newUser)
	if err != nil {
		return fail(ctx, "register user", err)
	}

	resp := UserCreatedResponse{
		Message: "Registration Completed",
		Token:   token,
	}
	return iz.Respond().Status(http.StatusCreated).JSON(resp)
}

func (api *Api) LoginUserHandler(r *iz.Request) iz.Responder {
	ctx := contextutil.NewTraceContext(r.Context())

	var loginRequest UserLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		return badRequest("invalid request body")
	}

	credentials := auth.UserCredentialsPure{
		UserName:      loginRequest.UserName,
		PasswordPlain: loginRequest.Password,
	}

	token, err := api.Service.GenerateSession(ctx, credentials)
	if err != nil {
		return fail(ctx, "login user", err)
	}

	response := LoginResponse{
		Message: "You've logged in successfully!",
		Token:   token,
	}
	return iz.Respond().Status(http.StatusOK).JSON(response)
}

func (api *Api) LogoutUserHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	token, _ := ctx.Value(contextutil.Token).(string)
	if err := api.Service.LogoutUser(ctx, userId, token); err != nil {
		return fail(ctx, "logout user", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(MessageResponse{Message: "Logout successful."})
}

func (api *Api) GetAccountHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	profile, err := api.Service.GetUserProfile(ctx, userId)
	if err != nil {
		return fail(ctx, "get account info", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(ProfileToHttp(profile))
}

// --- TRANSACTIONS & CATEGORIES --- //

func (api *Api) SaveTransactionHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	var newTransactionReq CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&newTransactionReq); err != nil {
		return badRequest("failed to parse save transaction request: %v", err)
	}

	request, err := newTransactionReq.ToTransactionRequest()
	if err != nil {
		return fail(ctx, "parse transaction", err)
	}

	txn, err := api.Service.SaveTransaction(ctx, userId, request)
	if err != nil {
		return fail(ctx, "create transaction", err)
	}
	return iz.Respond().Status(http.StatusCreated).JSON(TransactionToHttp(txn))
}

func (api *Api) GetTransactionsHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	filter, err := TransactionListParams(r.URL.Query(), api.Service.Location())
	if err != nil {
		return fail(ctx, "parse transaction filters", err)
	}

	ts, err := api.Service.GetTransactions(ctx, userId, filter)
	if err != nil {
		return fail(ctx, "get transactions", err)
	}

	resp := ListTransactionResponse{Transactions: make([]TransactionItem, 0, len(ts))}
	for _, t := range ts {
		resp.Transactions = append(resp.Transactions, TransactionToHttp(t))
	}
	return iz.Respond().Status(http.StatusOK).JSON(resp)
}

func (api *Api) SaveCategoryHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	var categoryReq CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&categoryReq); err != nil {
		return badRequest("failed to parse save category request: %v", err)
	}

	category, err := api.Service.SaveCategory(ctx, userId, budget.CategoryRequest{
		Name: categoryReq.Name,
		Kind: budget.TransactionKind(strings.ToLower(strings.TrimSpace(categoryReq.Kind))),
	})
	if err != nil {
		return fail(ctx, "create category", err)
	}
	return iz.Respond().Status(http.StatusCreated).JSON(CategoryToHttp(category))
}

func (api *Api) GetCategoriesHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	categories, err := api.Service.GetCategories(ctx, userId)
	if err != nil {
		return fail(ctx, "get categories", err)
	}

	resp := ListCategoryResponse{Categories: make([]CategoryItem, 0, len(categories))}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, CategoryToHttp(c))
	}
	return iz.Respond().Status(http.StatusOK).JSON(resp)
}

// --- BUDGET --- //

func (api *Api) UpdateBudgetHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	var budgetReq UpdateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&budgetReq); err != nil {
		return badRequest("failed to parse update budget request: %v", err)
	}

	amount, err := parseAmount(budgetReq.MonthlyAmount, "monthly_amount")
	if err != nil {
		return fail(ctx, "parse budget amount", err)
	}

	fields := budget.UpdateBudgetRequest{
		MonthlyAmount:     amount,
		Currency:          budgetReq.Currency,
		WarningThreshold:  budgetReq.WarningThreshold,
		CriticalThreshold: budgetReq.CriticalThreshold,
	}
	if err := api.Service.UpdateBudgetSettings(ctx, userId, fields); err != nil {
		return fail(ctx, "update budget", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(MessageResponse{Message: "Budget updated."})
}

func (api *Api) UpdatePreferencesHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	var prefsReq UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&prefsReq); err != nil {
		return badRequest("failed to parse update preferences request: %v", err)
	}

	prefs := budget.ReportPreferences{
		MonthlyReports: prefsReq.MonthlyReports,
		ReportFormat:   prefsReq.ReportFormat,
	}
	if err := api.Service.UpdateReportPreferences(ctx, userId, prefs); err != nil {
		return fail(ctx, "update report preferences", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(MessageResponse{Message: "Preferences updated."})
}

func (api *Api) GetBudgetStatusHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	status, err := api.Service.CheckBudgetStatus(ctx, userId)
	if err != nil {
		return fail(ctx, "check budget status", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(status)
}

func (api *Api) GetBudgetOverviewHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	overview, err := api.Service.GetBudgetOverview(ctx, userId)
	if err != nil {
		return fail(ctx, "get budget overview", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(overview)
}

func (api *Api) CheckBudgetAlertHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	result, err := api.Alerts.CheckAndNotify(ctx, userId)
	if err != nil {
		return fail(ctx, "check and notify budget alert", err)
	}

	resp := AlertCheckResponse{
		Sent:      result.Sent,
		AlertType: string(result.AlertType),
		Status:    result.Status,
	}
	return iz.Respond().Status(http.StatusOK).JSON(resp)
}

// --- REPORTS & NOTIFICATIONS --- //

func (api *Api) GetReportHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	month, err := ParseMonth(r.URL.Query().Get("month"), api.Service.Location())
	if err != nil {
		return fail(ctx, "parse report month", err)
	}

	data, err := api.Reports.UserReport(ctx, userId, month)
	if err != nil {
		return fail(ctx, "build report", err)
	}
	return iz.Respond().Status(http.StatusOK).JSON(data)
}

func (api *Api) SendReportHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	month, err := ParseMonth(r.URL.Query().Get("month"), api.Service.Location())
	if err != nil {
		return fail(ctx, "parse report month", err)
	}

	data, err := api.Reports.SendUserReport(ctx, userId, month)
	if err != nil {
		return fail(ctx, "send report", err)
	}
	msg := fmt.Sprintf("Report for %s sent.", data.Month)
	return iz.Respond().Status(http.StatusOK).JSON(MessageResponse{Message: msg})
}

// DownloadReportHandler writes the rendered report file, so it is a plain
// http handler rather than an iz one.
func (api *Api) DownloadReportHandler(w http.ResponseWriter, r *http.Request) {
	ctx := contextutil.NewTraceContext(r.Context())

	writeErr := func(err error) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatusFromError(err))
		_ = json.NewEncoder(w).Encode(errorBody(err))
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeErr(appErrors.New(appErrors.ErrAuth, "Authorization header is required."))
		return
	}
	userId, err := api.Service.CheckSession(ctx, token)
	if err != nil {
		writeErr(err)
		return
	}

	params := r.URL.Query()
	month, err := ParseMonth(params.Get("month"), api.Service.Location())
	if err != nil {
		writeErr(err)
		return
	}

	format := params.Get("format")
	if format == "" {
		profile, err := api.Service.GetUserProfile(ctx, userId)
		if err != nil {
			writeErr(err)
			return
		}
		format = profile.Preferences.ReportFormat
	}
	renderer, err := render.ForFormat(format)
	if err != nil {
		writeErr(appErrors.New(appErrors.ErrInvalidInput, "Unsupported report format '%s', allowed: csv, json", format))
		return
	}

	data, err := api.Reports.UserReport(ctx, userId, month)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to build report for download | Error: %v", contextutil.TraceIDFromContext(ctx), err)
		writeErr(err)
		return
	}

	artifact, err := renderer.Render(data)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to render report for download | Error: %v", contextutil.TraceIDFromContext(ctx), err)
		writeErr(err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Content)
}

func (api *Api) GetNotificationsHandler(r *iz.Request) iz.Responder {
	ctx, userId, denied := api.authorize(r)
	if denied != nil {
		return denied
	}

	notifications, err := api.Service.GetNotifications(ctx, userId)
	if err != nil {
		return fail(ctx, "get notifications", err)
	}
	if notifications == nil {
		notifications = []budget.Notification{}
	}
	return iz.Respond().Status(http.StatusOK).JSON(ListNotificationResponse{Notifications: notifications})
}
