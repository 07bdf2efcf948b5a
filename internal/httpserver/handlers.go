package httpserver

import (
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/nitematch/nitematch/internal/chat"
	"github.com/nitematch/nitematch/internal/errors"
	"github.com/nitematch/nitematch/internal/interfaces"
	"github.com/nitematch/nitematch/internal/middleware"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/services"
)

type handler struct {
	profiles      interfaces.ProfileServiceInterface
	auth          interfaces.AuthServiceInterface
	matches       interfaces.MatchingServiceInterface
	messages      interfaces.MessagingServiceInterface
	gate          *phase.Gate
	clock         phase.Clock
	secureCookies bool
}

type phaseResponse struct {
	Phase            phase.Phase      `json:"phase"`
	UnlockAt         time.Time        `json:"unlock_at"`
	Now              time.Time        `json:"now"`
	TimeRemaining    string           `json:"time_remaining"`
	Countdown        *phase.Countdown `json:"countdown,omitempty"`
	SecondsRemaining int64            `json:"seconds_remaining"`
}

func (h *handler) phase(c *gin.Context) {
	now := h.clock.Now()
	remaining := h.gate.TimeRemaining(now)
	resp := phaseResponse{
		Phase:         h.gate.Phase(now),
		UnlockAt:      h.gate.Unlock(),
		Now:           now.In(h.gate.Location()),
		TimeRemaining: remaining.String(),
	}
	if resp.Phase == phase.Collection {
		resp.Countdown = &remaining
		resp.SecondsRemaining = int64(h.gate.Unlock().Sub(now) / time.Second)
	}
	c.JSON(http.StatusOK, resp)
}

type questionView struct {
	Key    string                      `json:"key"`
	Text   string                      `json:"text"`
	Kind   questionnaire.DimensionKind `json:"kind"`
	Labels []string                    `json:"labels"`
}

type questionnaireResponse struct {
	Version   int            `json:"version"`
	Psych     []questionView `json:"psych"`
	Interest  []questionView `json:"interest"`
	Situation []questionView `json:"situation,omitempty"`
}

func questionViews(questions []questionnaire.Question) []questionView {
	out := make([]questionView, len(questions))
	for i, q := range questions {
		out[i] = questionView{Key: q.Key, Text: q.Text, Kind: q.Kind, Labels: q.Labels()}
	}
	return out
}

func (h *handler) questionnaire(c *gin.Context) {
	s := h.profiles.Questionnaire()
	c.JSON(http.StatusOK, questionnaireResponse{
		Version:   s.Version,
		Psych:     questionViews(s.Psych),
		Interest:  questionViews(s.Interest),
		Situation: questionViews(s.Situation),
	})
}

var jsonFieldNames sync.Once

// useJSONFieldNames makes binding errors name fields by their JSON key
func useJSONFieldNames() {
	jsonFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bind decodes the JSON body into dst and applies its binding tags
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Abort(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) *errors.AppError {
	var invalid validator.ValidationErrors
	if !stderrors.As(err, &invalid) || len(invalid) == 0 {
		return errors.NewValidationError("body", "Request body is not valid JSON").WithDetails(err.Error())
	}

	fe := invalid[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "max":
		msg = fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		msg = fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		msg = fe.Field() + " is invalid"
	}
	return errors.NewValidationError(fe.Field(), msg).WithMetadata("rule", fe.Tag())
}

func (h *handler) submitProfile(c *gin.Context) {
	var req services.SubmitRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.profiles.Submit(c.Request.Context(), req)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

type loginRequest struct {
	Alias string `json:"alias" binding:"required"`
	Email string `json:"email" binding:"required"`
}

type magicLinkRequest struct {
	Email string `json:"email" binding:"required"`
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.auth.LoginWithSecret(c.Request.Context(), req.Alias, req.Email)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	h.setSessionCookie(c, session.ID, session.ExpiresAt)
	c.JSON(http.StatusOK, sessionResponse{SessionID: session.ID, UserID: session.UserID, ExpiresAt: session.ExpiresAt})
}

func (h *handler) requestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if !bind(c, &req) {
		return
	}
	if err := h.auth.RequestMagicLink(c.Request.Context(), req.Email); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "If a profile exists for that address, a sign-in link is on its way",
	})
}

func (h *handler) verifyMagicLink(c *gin.Context) {
	session, err := h.auth.VerifyMagicLink(c.Request.Context(), c.Query("token"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	h.setSessionCookie(c, session.ID, session.ExpiresAt)
	c.JSON(http.StatusOK, sessionResponse{SessionID: session.ID, UserID: session.UserID, ExpiresAt: session.ExpiresAt})
}

func (h *handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.SessionID(c)); err != nil {
		middleware.Abort(c, err)
		return
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (h *handler) setSessionCookie(c *gin.Context, id string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(h.clock.Now()) / time.Second)
	if maxAge <= 0 {
		maxAge = int(h.auth.SessionTTL() / time.Second)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, id, maxAge, "/", "", h.secureCookies, true)
}

func (h *handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
}

func (h *handler) me(c *gin.Context) {
	view, err := h.profiles.Me(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type contactRequest struct {
	ContactHandle string `json:"contact_handle" binding:"max=64"`
	ShareContact  bool   `json:"share_contact"`
}

func (h *handler) updateContact(c *gin.Context) {
	var req contactRequest
	if !bind(c, &req) {
		return
	}
	view, err := h.profiles.UpdateContact(c.Request.Context(), middleware.MustUserID(c), req.ContactHandle, req.ShareContact)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) listMatches(c *gin.Context) {
	list, err := h.matches.Matches(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) conversations(c *gin.Context) {
	summaries, err := h.messages.Conversations(c.Request.Context(), middleware.MustUserID(c))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// channel derives the conversation between the viewer and the :counterpart
// path parameter
func channel(c *gin.Context) (me, channelID string) {
	me = middleware.MustUserID(c)
	return me, chat.ChannelID(me, c.Param("counterpart"))
}

type messagesResponse struct {
	ChannelID   string                 `json:"channel_id"`
	Counterpart string                 `json:"counterpart"`
	Messages    []services.MessageView `json:"messages"`
}

func (h *handler) listMessages(c *gin.Context) {
	me, channelID := channel(c)
	views, err := h.messages.List(c.Request.Context(), channelID, me)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messagesResponse{ChannelID: channelID, Counterpart: c.Param("counterpart"), Messages: views})
}

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if !bind(c, &req) {
		return
	}
	me, channelID := channel(c)
	view, err := h.messages.Send(c.Request.Context(), channelID, me, req.Text)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handler) unreadCount(c *gin.Context) {
	me, channelID := channel(c)
	n, err := h.messages.UnreadCount(c.Request.Context(), channelID, me)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "unread": n})
}
