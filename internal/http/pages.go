package httpx

import (
	"net/http"

	"github.com/acme/acct-console/internal/navigation"
)

// publicPage describes a marketing page reachable without signing in.
type publicPage struct {
	Path  string
	Page  string
	Title string
	Body  string
}

var publicPages = []publicPage{
	{Path: "/about", Page: "about", Title: "About", Body: "Account management for teams that need clear roles and audited access."},
	{Path: "/features", Page: "features", Title: "Features", Body: "Role-based dashboards, user approval workflows and self-service profiles."},
	{Path: "/faq", Page: "faq", Title: "FAQ", Body: "Answers to common questions about accounts, roles and verification."},
	{Path: "/contact", Page: "contact", Title: "Contact", Body: "Reach the support team for account and access questions."},
}

func homePage(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusOK, pageParams{
		Page:  "home",
		Title: "Home",
		Data:  map[string]string{"headline": "Manage accounts and access from one console."},
	})
}

func staticPage(p publicPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, http.StatusOK, pageParams{Page: p.Page, Title: p.Title, Data: map[string]string{"body": p.Body}})
	}
}

// loginPage renders the sign-in form. Signed-in browsers skip straight to
// their destination.
func loginPage(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("redirect_uri")
	if _, ok := IdentityFromContext(r.Context()); ok {
		if target == "" {
			target = navigation.DashboardPath
		}
		http.Redirect(w, r, safeRedirectPath(target), http.StatusSeeOther)
		return
	}
	data := map[string]string{}
	if target != "" {
		data["redirect_uri"] = safeRedirectPath(target)
	}
	writePage(w, r, http.StatusOK, pageParams{Page: "login", Title: "Login", Data: data})
}

func registerPage(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusOK, pageParams{Page: "register", Title: "Register"})
}

func verifyPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writePage(w, r, http.StatusOK, pageParams{
		Page:  "verify",
		Title: "Verify Email",
		Data:  map[string]any{"email": q.Get("email"), "sent": q.Get("sent") == "1"},
	})
}

func forgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusOK, pageParams{
		Page:  "forgot-password",
		Title: "Forgot Password",
		Data:  map[string]any{"sent": r.URL.Query().Get("sent") == "1"},
	})
}

// resetPasswordPage renders the reset form for an emailed link.
func resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	valid := q.Get("id") != "" && q.Get("token") != ""
	status := http.StatusOK
	if !valid {
		status = http.StatusBadRequest
	}
	writePage(w, r, status, pageParams{
		Page:  "reset-password",
		Title: "Reset Password",
		Data:  map[string]any{"id": q.Get("id"), "token": q.Get("token"), "valid": valid},
	})
}

func unauthorizedPage(w http.ResponseWriter, r *http.Request) {
	writePage(w, r, http.StatusForbidden, pageParams{
		Page:  "unauthorized",
		Title: "Unauthorized",
		Data:  map[string]string{"message": "You do not have access to this page."},
	})
}

// adminIndex sends the bare admin prefix to the dashboard screen.
func adminIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, navigation.DashboardPath, http.StatusSeeOther)
}

// notFoundHandler answers unmatched paths: a page for browsers, JSON for APIs.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
		return
	}
	writePage(w, r, http.StatusNotFound, pageParams{Page: "not-found", Title: "Not Found"})
}
