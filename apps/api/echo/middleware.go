package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/subject"
)

const contextSubjectKey = "subject"

func roleMiddleware(auth *authenticator, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.contextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, core.RoleAdmin)
}

func instructorMiddleware(auth *authenticator) echo.MiddlewareFunc {
	return roleMiddleware(auth, core.RoleInstructor)
}

// coordinatorMiddleware loads the subject the caller currently coordinates into the context.
// The user is reloaded since the coordinator may have changed after the token was issued.
func coordinatorMiddleware(auth *authenticator, svc *subject.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := auth.contextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsInstructor() || usr.CoordinatorFor == "" {
				return errNotCoordinator
			}

			s, err := svc.GetByCode(ctx.Request().Context(), usr.CoordinatorFor)
			if err != nil {
				if core.IsNotFound(err) {
					return errNotCoordinator
				}
				return errors.Wrap(err, "finding coordinated subject")
			}
			if !s.IsCoordinator(usr.ID) {
				return errNotCoordinator
			}
			ctx.Set(contextSubjectKey, s)
			return next(ctx)
		}
	}
}

// coordinatorIdentity returns the caller as reloaded by coordinatorMiddleware, along with their subject.
func coordinatorIdentity(ctx echo.Context, auth *authenticator) (core.Identity, subject.Subject, error) {
	s, ok := ctx.Get(contextSubjectKey).(subject.Subject)
	if !ok {
		return core.Identity{}, subject.Subject{}, errors.New("subject object not found in echo.Context")
	}
	usr, err := auth.contextUser(ctx)
	if err != nil {
		return core.Identity{}, subject.Subject{}, errors.Wrap(err, "getting context user")
	}
	return usr.Identity(), s, nil
}
