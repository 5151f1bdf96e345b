package httpapi

import (
	"context"
	"net/http"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// Заголовки идентичности, проставляемые внешним auth-слоем (API gateway).
// Сервис доверяет им и сам учётные данные не проверяет.
const (
	HeaderAccountID   = "X-Account-Id"
	HeaderAccountRole = "X-Account-Role"
)

type actorContextKey struct{}

// requireActor извлекает актора из заголовков запроса.
// Запросы без идентичности или с неизвестной ролью отклоняются.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.Header.Get(HeaderAccountID)
		if accountID == "" {
			writeError(w, http.StatusUnauthorized, "missing account identity")
			return
		}

		role := domain.Role(r.Header.Get(HeaderAccountRole))
		switch role {
		case domain.RoleCustomer, domain.RoleAdmin, domain.RoleShopkeeper:
		case "":
			role = domain.RoleCustomer
		default:
			writeError(w, http.StatusUnauthorized, "unknown account role")
			return
		}

		actor := domain.Actor{AccountID: accountID, Role: role}
		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFromContext возвращает актора, сохранённого requireActor.
func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}
