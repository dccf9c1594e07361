package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
	"github.com/cs61as/coursesite/core/progress"
	"github.com/cs61as/coursesite/core/user"
)

const (
	msgLoginFailed = "Invalid username or password."
	msgDeactivated = "This account is deactivated."
	msgBadRequest  = "The submitted form is invalid."
	msgPageMissing = "Page not found."
	msgServerError = "Something went wrong. Please contact an administrator."

	backKey = "back"
)

// setBack sets where errors of the current route redirect to: the nearest listing page.
func setBack(ctx echo.Context, path string) {
	ctx.Set(backKey, path)
}

func backPath(ctx echo.Context) string {
	if path, ok := ctx.Get(backKey).(string); ok && path != "" {
		return path
	}
	return landingPath(principalOf(ctx))
}

// refererPath returns the path of the referring page of this site, or backPath.
func refererPath(ctx echo.Context) string {
	ref, err := url.Parse(ctx.Request().Referer())
	if err != nil || ref.Path == "" || !strings.HasPrefix(ref.Path, "/") || (ref.Host != "" && ref.Host != ctx.Request().Host) {
		return backPath(ctx)
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}

// userArg is the logger argument identifying the principal.
func userArg(p auth.Principal) interface{} {
	if usr, ok := p.User(); ok {
		return usr
	}
	return user.User{Username: "guest"}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler turning our errors into an error flash and a redirect.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}
		p := principalOf(ctx)

		var (
			messages []string
			to       string
		)
		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			switch {
			case origErr.Code == http.StatusForbidden:
				messages, to = []string{httpMessage(origErr)}, landingPath(p)
			case origErr.Code == http.StatusNotFound, origErr.Code == http.StatusMethodNotAllowed:
				messages, to = []string{msgPageMissing}, landingPath(p)
			case origErr.Code == http.StatusTooManyRequests:
				messages, to = []string{httpMessage(origErr)}, refererPath(ctx)
			case origErr.Code < http.StatusInternalServerError:
				messages, to = []string{msgBadRequest}, refererPath(ctx)
			}
		case validator.ValidationErrors:
			for _, vErr := range origErr {
				messages = append(messages, vErr.Field()+": "+vErr.Translate(translator))
			}
			to = refererPath(ctx)
		case *core.ValidationError:
			for _, fErr := range origErr.Fields {
				messages = append(messages, fErr.Field+": "+fErr.Error)
			}
			if len(messages) == 0 {
				messages = []string{sentence(origErr.Error())}
			}
			to = refererPath(ctx)
		case *core.NotFoundError:
			messages, to = []string{sentence(origErr.Error())}, backPath(ctx)
		default:
			switch errors.Cause(err) {
			case auth.ErrAuthenticationFailed:
				messages, to = []string{msgLoginFailed}, "/home"
			case auth.ErrAccountDeactivated:
				messages, to = []string{msgDeactivated}, "/home"
			case progress.ErrIndexOutOfRange, progress.ErrUnknownKind, progress.ErrNotSubmittable:
				messages, to = []string{sentence(errors.Cause(err).Error())}, refererPath(ctx)
			}
		}

		if to == "" { // any other error is a server error
			logger.Error(ctx.Request().Method+" "+ctx.Request().URL.Path, errors.Wrap(err, "serving request"), userArg(p))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				if err = ctx.String(http.StatusInternalServerError, err.Error()); err != nil {
					ctx.Echo().Logger.Error(err)
				}
				return
			}
			messages, to = []string{msgServerError}, landingPath(p)
		}

		if sess := sessionOf(ctx); sess != nil {
			for _, msg := range messages {
				sess.AddFlash(core.FlashError, msg)
			}
		}
		if err = ctx.Redirect(http.StatusFound, to); err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

func httpMessage(herr *echo.HTTPError) string {
	if msg, ok := herr.Message.(string); ok {
		return msg
	}
	return http.StatusText(herr.Code)
}

// sentence capitalizes msg and ends it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	msg = strings.ToUpper(msg[:1]) + msg[1:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
