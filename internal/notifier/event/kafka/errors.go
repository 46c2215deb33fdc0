package kafka

// ParseError представляет ошибку разбора события
type ParseError struct {
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}
