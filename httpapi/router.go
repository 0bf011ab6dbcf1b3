package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func newRouter(h *handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/api", h.terminate).Methods(http.MethodDelete)
	r.HandleFunc("/api/messages/", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/", h.deleteMessages).Methods(http.MethodDelete)
	r.HandleFunc("/api/messages/{id:[0-9]+}.json", h.messageInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id:[0-9]+}", h.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/api/messages/{id:[0-9]+}.plain", h.messagePlain).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id:[0-9]+}.html", h.messageHTML).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id:[0-9]+}.source", h.messageSource).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id:[0-9]+}.eml", h.messageEML).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id:[0-9]+}/parts/{cid}", h.messagePart).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.webSocket).Methods(http.MethodGet)

	return r
}
