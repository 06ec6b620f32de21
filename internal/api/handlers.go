package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/dost/internal/chat"
	"github.com/MrWong99/dost/internal/community"
	"github.com/MrWong99/dost/internal/journal"
	"github.com/MrWong99/dost/internal/wellness"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// ── Chat ─────────────────────────────────────────────────────────────────────

type chatView struct {
	ID    string      `json:"id"`
	Turns []chat.Turn `json:"turns"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Chats.Create(r.Context())
	writeJSON(w, http.StatusCreated, chatView{ID: sess.ID(), Turns: sess.Turns()})
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Chats.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "chat session not found")
		return
	}
	writeJSON(w, http.StatusOK, chatView{ID: sess.ID(), Turns: sess.Turns()})
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chats.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "chat session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendChat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Chats.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "chat session not found")
		return
	}
	var req textRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	turn, err := sess.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message must not be empty")
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, "a reply is still in progress")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, turn)
	}
}

// ── Wellness ─────────────────────────────────────────────────────────────────

type moderateRequest struct {
	Message string `json:"message"`
}

func (s *Server) moderate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Wellness.Moderate(r.Context(), req.Message))
}

type questionsView struct {
	Test      wellness.Test `json:"test"`
	Questions []string      `json:"questions"`
	Options   []string      `json:"options"`
	MaxScore  int           `json:"maxScore"`
}

func (s *Server) screeningQuestions(w http.ResponseWriter, r *http.Request) {
	test, err := wellness.ParseTest(r.PathValue("test"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, questionsView{
		Test:      test,
		Questions: wellness.Questions(test),
		Options:   wellness.AnswerOptions,
		MaxScore:  wellness.MaxScore(test),
	})
}

type screeningRequest struct {
	Test    string `json:"test"`
	Answers []int  `json:"answers"`
}

type screeningView struct {
	Test           wellness.Test           `json:"test"`
	Score          int                     `json:"score"`
	MaxScore       int                     `json:"maxScore"`
	Severity       string                  `json:"severity"`
	Recommendation wellness.Recommendation `json:"recommendation"`
}

func (s *Server) screening(w http.ResponseWriter, r *http.Request) {
	var req screeningRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	test, err := wellness.ParseTest(req.Test)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	score, err := wellness.Score(test, req.Answers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.deps.Wellness.AnalyzeScreening(r.Context(), test, score)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, screeningView{
		Test:           test,
		Score:          score,
		MaxScore:       wellness.MaxScore(test),
		Severity:       wellness.Severity(test, score),
		Recommendation: rec,
	})
}

// credentialField is the multipart field holding the uploaded document.
const credentialField = "degree"

func (s *Server) verifyCredential(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, wellness.MaxCredentialSize+1<<20)
	file, hdr, err := r.FormFile(credentialField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing "+credentialField+" file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, wellness.MaxCredentialSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}
	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}

	res, err := s.deps.Wellness.VerifyCredential(r.Context(), generate.Attachment{MIMEType: mime, Data: data})
	switch {
	case errors.Is(err, wellness.ErrUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, "only JPEG, PNG and WebP images are accepted")
	case errors.Is(err, wellness.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
	case errors.Is(err, wellness.ErrCredentialRejected):
		writeError(w, http.StatusUnprocessableEntity, wellness.ErrCredentialRejected.Error())
	case errors.Is(err, wellness.ErrVerificationFailed):
		writeError(w, http.StatusBadGateway, wellness.ErrVerificationFailed.Error())
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

type searchRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (s *Server) searchCounselors(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var loc *generate.LatLng
	switch {
	case req.Lat != nil && req.Lng != nil:
		if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
			writeError(w, http.StatusBadRequest, "coordinates out of range")
			return
		}
		loc = &generate.LatLng{Latitude: *req.Lat, Longitude: *req.Lng}
	case req.Lat != nil || req.Lng != nil:
		writeError(w, http.StatusBadRequest, "lat and lng must be given together")
		return
	}
	res, err := s.deps.Wellness.SearchCounselors(r.Context(), loc)
	if err != nil {
		logFailure(r, err)
		writeError(w, http.StatusBadGateway, "counselor search unavailable")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ── Journal ──────────────────────────────────────────────────────────────────

func (s *Server) listJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Journal.List(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) addJournal(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.deps.Journal.Add(r.Context(), req.Text)
	switch {
	case errors.Is(err, journal.ErrEmptyEntry):
		writeError(w, http.StatusBadRequest, "entry must not be empty")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, e)
	}
}

func (s *Server) deleteJournal(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Journal.Delete(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, journal.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case err != nil:
		internalError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ── Community ────────────────────────────────────────────────────────────────

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, community.Rooms)
}

func (s *Server) roomMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Community.Messages(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, community.ErrUnknownRoom):
		writeError(w, http.StatusNotFound, "room not found")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, msgs)
	}
}

type postRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

func (s *Server) postRoom(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := s.deps.Community.Post(r.Context(), r.PathValue("id"), req.Username, req.Text)
	var rejected *community.RejectedError
	switch {
	case errors.Is(err, community.ErrUnknownRoom):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, community.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message must not be empty")
	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, rejected.Error())
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, msg)
	}
}
