package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/msztolcman/sendria/bus"
	"github.com/msztolcman/sendria/internal/apperr"
	"github.com/msztolcman/sendria/internal/logging"
	"github.com/msztolcman/sendria/store"
)

var htmlTypes = []string{"text/html", "application/xhtml+xml"}
var plainTypes = []string{"text/plain"}

type handlers struct {
	store      *store.Store
	bus        *bus.Bus
	log        logging.Logger
	headerName string
	headerURL  string

	noQuit      bool
	noClear     bool
	terminateFn func()
}

func idFromRequest(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.KindNotFound, "invalid message id")
	}
	return id, nil
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	header := ""
	if h.headerName != "" {
		url := h.headerURL
		if url == "" {
			url = "#"
		}
		header = fmt.Sprintf(`<p><a href="%s">%s</a></p>`, url, h.headerName)
	}
	fmt.Fprintf(w, `<!doctype html>
<html><head><title>sendria</title></head>
<body>
<h1>sendria</h1>
%s
<p><a href="/api/messages/">trapped messages (JSON)</a></p>
</body></html>`, header)
}

func (h *handlers) terminate(w http.ResponseWriter, r *http.Request) {
	if h.noQuit {
		writeError(w, apperr.Forbidden("termination disabled (no_quit)"))
		return
	}
	writeOK(w, nil)
	if h.terminateFn != nil {
		go h.terminateFn()
	}
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageSummary, 0, len(messages))
	for _, m := range messages {
		out = append(out, summaryFromMessage(m))
	}
	writeOK(w, out)
}

func (h *handlers) deleteMessages(w http.ResponseWriter, r *http.Request) {
	if h.noClear {
		writeError(w, apperr.Forbidden("deletion disabled (no_clear)"))
		return
	}
	if err := h.store.DeleteAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if h.bus != nil {
		h.bus.Publish("delete_messages")
	}
	writeOK(w, nil)
}

func (h *handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if h.bus != nil {
		h.bus.Publish("delete_message", id)
	}
	writeOK(w, nil)
}

func (h *handlers) messageInfo(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	msg, err := h.store.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	formats := []string{"source"}
	if ok, _ := h.store.HasAnyType(ctx, id, htmlTypes); ok {
		formats = append(formats, "html")
	}
	if ok, _ := h.store.HasAnyType(ctx, id, plainTypes); ok {
		formats = append(formats, "plain")
	}

	attachments, err := h.store.Attachments(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]attachmentInfo, 0, len(attachments))
	for _, a := range attachments {
		infos = append(infos, attachmentInfo{
			CID:         a.CID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Href:        fmt.Sprintf("/api/messages/%d/parts/%s", id, a.CID),
		})
	}

	writeOK(w, messageInfo{
		messageSummary: summaryFromMessage(msg),
		Formats:        formats,
		Attachments:    infos,
		Href:           fmt.Sprintf("/api/messages/%d.eml", id),
	})
}

func (h *handlers) messagePlain(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	part, err := h.store.GetFirstPartByTypes(r.Context(), id, plainTypes)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(part.Body)
}

func (h *handlers) messageHTML(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	part, err := h.store.GetFirstPartByTypes(r.Context(), id, htmlTypes)
	if err != nil {
		writeError(w, err)
		return
	}

	rewritten, err := rewriteHTML(decodeToUTF8(part.Body, part.Charset), func(cid string) string {
		return fmt.Sprintf("/api/messages/%d/parts/%s", id, cid)
	})
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindDecode, "rewriting html part", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(rewritten)
}

func (h *handlers) messageSource(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(msg.Source)
}

func (h *handlers) messageEML(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%d.eml"`, id))
	w.Write(msg.Source)
}

func (h *handlers) messagePart(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cid := mux.Vars(r)["cid"]
	part, err := h.store.GetPartByCID(r.Context(), id, cid)
	if err != nil {
		writeError(w, err)
		return
	}
	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if part.IsAttachment && part.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, part.Filename))
	}
	w.Write(part.Body)
}
