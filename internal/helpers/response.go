package helpers

type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Total   int         `json:"total,omitempty"`
}

func SuccessResponse(data interface{}, message string) ApiResponse {
	return ApiResponse{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func ErrorResponse(err string) ApiResponse {
	return ApiResponse{
		Success: false,
		Error:   err,
	}
}

// ErrorWithData echoes the submitted input back so the client can resubmit.
func ErrorWithData(err string, data interface{}) ApiResponse {
	return ApiResponse{
		Success: false,
		Error:   err,
		Data:    data,
	}
}

// ListResponse carries a newest-first list. A non-empty warning means the
// list could not be loaded and is shown empty.
func ListResponse(data interface{}, limit, total int, warning string) ApiResponse {
	return ApiResponse{
		Success: true,
		Data:    data,
		Warning: warning,
		Limit:   limit,
		Total:   total,
	}
}
