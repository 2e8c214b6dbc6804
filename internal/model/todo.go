package model

import "time"

// TodoTextMaxLength はTodo本文の最大文字数。
const TodoTextMaxLength = 500

// Todo はメンバーが所有する1件のタスクを表す。
type Todo struct {
	ID           int64
	MemberID     int64
	Text         string
	Completed    bool
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy は指定メンバーの所有物かを返す。
func (t Todo) OwnedBy(memberID int64) bool {
	return t.MemberID == memberID
}

// WithText は本文を差し替えた新しいTodoを返す。
func (t Todo) WithText(text string) Todo {
	t.Text = text
	return t
}

// WithCompleted は完了状態を差し替えた新しいTodoを返す。
func (t Todo) WithCompleted(completed bool) Todo {
	t.Completed = completed
	return t
}

// WithDisplayOrder は表示順を差し替えた新しいTodoを返す。
func (t Todo) WithDisplayOrder(order int) Todo {
	t.DisplayOrder = order
	return t
}

// Toggled は完了状態を反転した新しいTodoを返す。
func (t Todo) Toggled() Todo {
	t.Completed = !t.Completed
	return t
}

// TodoFilter はTodo一覧のフィルタ種別を表す。
type TodoFilter string

const (
	// TodoFilterAll は全件を表示するフィルタ。
	TodoFilterAll TodoFilter = "all"
	// TodoFilterActive は未完了のみを表示するフィルタ。
	TodoFilterActive TodoFilter = "active"
	// TodoFilterCompleted は完了済みのみを表示するフィルタ。
	TodoFilterCompleted TodoFilter = "completed"
)

// ParseTodoFilter はクエリパラメータからフィルタを解決する。
// 空文字列はallとして扱い、未知の値の場合はfalseを返す。
func ParseTodoFilter(s string) (TodoFilter, bool) {
	switch TodoFilter(s) {
	case "", TodoFilterAll:
		return TodoFilterAll, true
	case TodoFilterActive:
		return TodoFilterActive, true
	case TodoFilterCompleted:
		return TodoFilterCompleted, true
	}
	return "", false
}

// TodoStats はメンバー単位の集計結果を表す。
type TodoStats struct {
	Total     int64
	Active    int64
	Completed int64
}

// NewTodoStats は全件数と完了件数から集計結果を組み立てる。
func NewTodoStats(total, completed int64) TodoStats {
	return TodoStats{
		Total:     total,
		Active:    total - completed,
		Completed: completed,
	}
}
