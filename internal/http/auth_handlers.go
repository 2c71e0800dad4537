package http

import (
	"errors"
	htemplate "html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellolink/internal/flow"
	"github.com/dropDatabas3/hellolink/internal/http/middlewares"
)

// AuthHandler expone las operaciones del protocolo sobre flow.Service.
type AuthHandler struct {
	Flow *flow.Service
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/v1/auth/start", h.start)
	r.Get("/magic", h.magic)
	r.Get("/code", h.codeForm)
	r.Post("/code", h.codeSubmit)
	r.Post("/v1/auth/token", h.token)
}

// ─── Start ───

type startBody struct {
	ClientID    string `json:"client_id"`
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
	AppReturnTo string `json:"app_return_to"`
	AppName     string `json:"app_name"`
}

func (h *AuthHandler) start(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := ReadJSON(w, r, &body); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	// Echo condicional de CORS: solo si el Origin está en la allowlist
	// del client. Se resuelve antes del start para que también los 429
	// lleguen con header al browser.
	if origin := r.Header.Get("Origin"); origin != "" {
		if h.Flow.OriginAllowed(r.Context(), body.ClientID, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
	}

	res, err := h.Flow.Start(r.Context(), flow.StartInput{
		ClientID:    body.ClientID,
		Email:       body.Email,
		RedirectURI: body.RedirectURI,
		State:       body.State,
		AppReturnTo: body.AppReturnTo,
		AppName:     body.AppName,
		IP:          middlewares.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		countStart(errCode(err))
		WriteFlowError(w, err)
		return
	}
	countStart(res.Status)
	WriteJSON(w, http.StatusOK, res)
}

// ─── Redención por magic link ───

func (h *AuthHandler) magic(w http.ResponseWriter, r *http.Request) {
	t := r.URL.Query().Get("t")
	red, err := h.Flow.RedeemMagicLink(r.Context(), t)
	if err != nil {
		countRedemption("magic", errCode(err))
		WriteFlowErrorText(w, err)
		return
	}
	countRedemption("magic", "ok")
	http.Redirect(w, r, red.RedirectURL, http.StatusFound)
}

// ─── Redención por código (cross-device / entrada manual) ───

var codePage = htemplate.Must(htemplate.New("code_page").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Enter sign-in code</title>
    <style>
      body{font-family:Inter,system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif;background:#f6f1fb;color:#2D0D3C;margin:0;padding:24px}
      .wrap{max-width:520px;margin:0 auto}
      .card{background:#fff;border:1px solid #E6DDF0;border-radius:16px;padding:18px;box-shadow:0 12px 32px rgba(45,13,60,0.08)}
      h1{margin:0 0 6px;font-size:20px}
      label{display:block;margin-top:12px;font-size:13px;color:#6C4F79}
      input{width:100%;border:1px solid #E6DDF0;border-radius:12px;padding:12px 12px;font-size:16px;outline:none}
      input:focus{border-color:#B79AD0;box-shadow:0 0 0 3px rgba(183,154,208,0.25)}
      .btn{margin-top:14px;display:inline-block;background:#B79AD0;color:#fff;border:0;border-radius:12px;padding:12px 16px;font-weight:700;font-size:15px;cursor:pointer}
      .muted{margin-top:10px;font-size:12px;color:#7A6488;line-height:1.5}
    </style>
  </head>
  <body>
    <div class="wrap">
      <div class="card">
        <h1>Enter your sign-in code</h1>
        <div class="muted">Use the 6-digit code from the email.</div>
        <form method="post" action="/code">
          <label for="email">Email</label>
          <input id="email" name="email" type="email" autocomplete="email" required value="{{.Email}}">
          <label for="code">Code</label>
          <input id="code" name="code" inputmode="numeric" autocomplete="one-time-code" required value="{{.Code}}">
          <button class="btn" type="submit">Continue</button>
        </form>
        <div class="muted">If you didn't request this, you can ignore it.</div>
      </div>
    </div>
  </body>
</html>`))

func (h *AuthHandler) codeForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = codePage.Execute(w, struct{ Email, Code string }{
		Email: q.Get("email"),
		Code:  q.Get("c"),
	})
}

func (h *AuthHandler) codeSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Missing email or code", http.StatusBadRequest)
		return
	}
	red, err := h.Flow.RedeemCode(r.Context(),
		r.PostFormValue("email"), r.PostFormValue("code"), middlewares.ClientIP(r))
	if err != nil {
		countRedemption("code", errCode(err))
		WriteFlowErrorText(w, err)
		return
	}
	countRedemption("code", "ok")
	http.Redirect(w, r, red.RedirectURL, http.StatusFound)
}

// ─── Exchange ───

type tokenBody struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

func (h *AuthHandler) token(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if err := ReadJSON(w, r, &body); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	res, err := h.Flow.Exchange(r.Context(), flow.ExchangeInput{
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		Code:         body.Code,
		RedirectURI:  body.RedirectURI,
	})
	if err != nil {
		countExchange(errCode(err))
		WriteFlowError(w, err)
		return
	}
	countExchange("ok")
	WriteJSON(w, http.StatusOK, res)
}

func errCode(err error) string {
	var fe *flow.FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return "internal_error"
}
