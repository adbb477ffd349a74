// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, role)
//	httputil.WriteForbidden(w, "access denied")
//
// Service errors are mapped to status codes with errors.Is. Unmapped
// errors become a generic 500 and are logged with the request logger:
//
//	httputil.WriteServiceError(w, r, err, []httputil.ErrorStatus{
//		{Err: rbac.ErrValidation, Status: http.StatusBadRequest},
//		{Err: rbac.ErrNotFound, Status: http.StatusNotFound},
//	})
//
// # Request Parsing
//
//	var req createRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
