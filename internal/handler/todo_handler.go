package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/todo"
)

// TodoServiceInterface はTodoハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context, principal model.Principal, filter model.TodoFilter) ([]*model.Todo, error)
	Get(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error)
	Create(ctx context.Context, principal model.Principal, in todo.CreateInput) (*model.Todo, error)
	Update(ctx context.Context, principal model.Principal, id int64, in todo.UpdateInput) (*model.Todo, error)
	Toggle(ctx context.Context, principal model.Principal, id int64) (*model.Todo, error)
	Delete(ctx context.Context, principal model.Principal, id int64) error
	DeleteCompleted(ctx context.Context, principal model.Principal) (int64, error)
	Stats(ctx context.Context, principal model.Principal) (model.TodoStats, error)
}

// TodoHandler はTodo管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

// todoRequest はTodo作成・更新リクエストのボディ。
// completedとdisplayOrderは更新時のみ参照し、省略時は変更しない。
type todoRequest struct {
	Text         string `json:"text"`
	Completed    *bool  `json:"completed"`
	DisplayOrder *int   `json:"displayOrder"`
}

// todoResponse はTodoのAPIレスポンス。
type todoResponse struct {
	ID           int64     `json:"id"`
	Text         string    `json:"text"`
	Completed    bool      `json:"completed"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// todoStatsResponse はTodo集計のAPIレスポンス。
type todoStatsResponse struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
}

// ListTodos はTodo一覧を返す。
// GET /api/todos?filter=all|active|completed
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("filter")
	filter, ok := model.ParseTodoFilter(raw)
	if !ok {
		handleServiceError(w, model.NewInvalidFilterError(raw))
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	todos, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]todoResponse, 0, len(todos))
	for _, t := range todos {
		resp = append(resp, toTodoResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTodo はTodoを1件返す。
// GET /api/todos/{id}
func (h *TodoHandler) GetTodo(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	t, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// CreateTodo はTodoを末尾に追加する。
// POST /api/todos
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	t, err := h.service.Create(r.Context(), principal, todo.CreateInput{Text: req.Text, Completed: req.Completed})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTodoResponse(t))
}

// UpdateTodo はTodoを更新する。
// PUT /api/todos/{id}
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req todoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	t, err := h.service.Update(r.Context(), principal, id, todo.UpdateInput{
		Text:         req.Text,
		Completed:    req.Completed,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// ToggleTodo はTodoの完了状態を反転する。
// PATCH /api/todos/{id}/toggle
func (h *TodoHandler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	t, err := h.service.Toggle(r.Context(), principal, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// DeleteTodo はTodoを削除する。
// DELETE /api/todos/{id}
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCompletedTodos は完了済みのTodoをまとめて削除する。
// DELETE /api/todos/completed
func (h *TodoHandler) DeleteCompletedTodos(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	if _, err := h.service.DeleteCompleted(r.Context(), principal); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats はTodoの集計を返す。
// GET /api/todos/stats
func (h *TodoHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	stats, err := h.service.Stats(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, todoStatsResponse{
		Total:     stats.Total,
		Active:    stats.Active,
		Completed: stats.Completed,
	})
}

// todoIDParam はパスパラメータからTodo IDを取り出す。正の整数でない場合は400のAPIErrorを返す。
func todoIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidRequestError(map[string]string{"id": "IDは正の整数で指定してください。"})
	}
	return id, nil
}

func toTodoResponse(t *model.Todo) todoResponse {
	return todoResponse{
		ID:           t.ID,
		Text:         t.Text,
		Completed:    t.Completed,
		DisplayOrder: t.DisplayOrder,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
