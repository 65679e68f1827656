package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ReactionMap 以 jsonb 形式存储 reaction 名 → 计数。
// 计数只通过 Add 调整，保证不出现负值。
type ReactionMap map[string]int

// Add 调整某个 reaction 的计数，减到 0 时移除该键。
func (m ReactionMap) Add(name string, delta int) {
	n := m[name] + delta
	if n <= 0 {
		delete(m, name)
		return
	}
	m[name] = n
}

func (m ReactionMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *ReactionMap) Scan(src interface{}) error {
	if src == nil {
		*m = ReactionMap{}
		return nil
	}
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, m)
}

// Comment 是内嵌在通知里的评论，只追加不重排。
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentList []Comment

func (l CommentList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *CommentList) Scan(src interface{}) error {
	if src == nil {
		*l = CommentList{}
		return nil
	}
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, l)
}

// Formatting 描述消息的富文本样式。
type Formatting struct {
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
	Color  string `json:"color,omitempty"`
}

func (f Formatting) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *Formatting) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, f)
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported jsonb source type")
	}
}
