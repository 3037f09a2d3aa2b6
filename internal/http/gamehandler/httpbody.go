package gamehandler

type RecordRunBody struct {
	Status     string `json:"status"      binding:"required,oneof=WIN LOSE" example:"WIN"`
	DurationMs int64  `json:"duration_ms" binding:"gte=0"                   example:"61250"`
	Score      int64  `json:"score"       binding:"gte=0"                   example:"1200"`
	UserID     string `json:"user_id"     example:"user123"`
} // @name RecordRunRequest

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
