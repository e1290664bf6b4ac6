package models

// Candidate — номинант турнира (фильм). Неизменяем после попадания в сетку.
type Candidate struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	PosterKey *string `json:"-"`
	PosterURL *string `json:"poster_url,omitempty"`
	// AddedBy хранит ID пользователей, в чьих списках был кандидат.
	// Длина 2 означает "из обоих списков".
	AddedBy []int `json:"added_by,omitempty"`
}

// FromBothLists сообщает, что кандидат присутствовал в списках обоих участников.
func (c Candidate) FromBothLists() bool {
	return len(c.AddedBy) >= 2
}
