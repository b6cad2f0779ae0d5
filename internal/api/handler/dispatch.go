package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/approval-system/internal/api/middleware"
	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/infrastructure/queue"
)

// Dispatcher runs mutating operations on sharded workers and keeps their receipts.
type Dispatcher interface {
	Submit(ctx context.Context, op queue.Operation) (*queue.Receipt, error)
	Receipt(id string) (*queue.Receipt, bool)
}

const preferAsync = "respond-async"

// wantsAsync reports whether the client sent Prefer: respond-async.
func wantsAsync(c echo.Context) bool {
	for _, v := range c.Request().Header.Values("Prefer") {
		for _, pref := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(pref), preferAsync) {
				return true
			}
		}
	}
	return false
}

// dispatch submits run under name and key. By default it waits for the
// outcome and renders it with render. With Prefer: respond-async it answers
// 202 with the receipt and a Location pointing at /v1/operations/{id}.
func dispatch[T any](c echo.Context, d Dispatcher, name, key string, run func(ctx context.Context) (T, error), render func(T) error) error {
	ctx := c.Request().Context()
	async := wantsAsync(c)
	if async {
		// The request context ends with this handler; a queued operation
		// must not be abandoned because of that.
		ctx = context.WithoutCancel(ctx)
	}

	owner, _ := c.Get(middleware.IdentityKey).(string)
	receipt, err := d.Submit(ctx, queue.Operation{
		Name:  name,
		Key:   key,
		Owner: owner,
		Run: func(ctx context.Context) (any, error) {
			return run(ctx)
		},
	})
	if err != nil {
		return err
	}

	if async {
		c.Response().Header().Set(echo.HeaderLocation, operationPath(receipt.ID()))
		return c.JSON(http.StatusAccepted, toOperationResponse(receipt.View()))
	}

	result, err := receipt.Wait(c.Request().Context())
	if err != nil {
		if ctxErr := c.Request().Context().Err(); ctxErr != nil && err == ctxErr {
			return domain.Transport("await "+name+" operation "+receipt.ID(), err)
		}
		return err
	}
	out, _ := result.(T)
	return render(out)
}

func operationPath(id string) string {
	return "/v1/operations/" + id
}

func identityKey(identity string) string {
	return "identity:" + strings.ToLower(identity)
}

func transactionKey(id int64) string {
	return "transaction:" + strconv.FormatInt(id, 10)
}

func approvalKey(id int64) string {
	return "approval:" + strconv.FormatInt(id, 10)
}
