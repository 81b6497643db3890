// Package http implements the HTTP handlers of the dashboard API.
// It provides a thin layer between HTTP transport and business logic:
// handlers parse the request, delegate to the service layer and render
// the JSON response; all decisions live in internal/services.
//
// Each handler follows this pattern:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    result, err := h.service.DoSomething(r.Context(), params)
//	    if err != nil {
//	        h.errorHandler.HandleError(w, r, transformError(err))
//	        return
//	    }
//	    render.JSON(w, r, result)
//	}
package http
