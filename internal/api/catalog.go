package api

import (
	"net/http"

	"github.com/safar/gallery-store/internal/models"
	"github.com/safar/gallery-store/internal/policy"
	"github.com/safar/gallery-store/internal/store"
)

// ListArtworks handles GET /artworks. Filters: q, artist (email),
// featured=true, curation (curators only); otherwise pages through the
// whole catalog.
func (h *Handler) ListArtworks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		artworks []models.Artwork
		err      error
	)
	switch {
	case q.Get("q") != "":
		artworks, err = store.SearchArtworks(ctx, h.db, q.Get("q"))
	case q.Get("artist") != "":
		artworks, err = store.ListArtworksByArtist(ctx, h.db, q.Get("artist"))
	case q.Get("featured") == "true":
		artworks, err = store.ListFeaturedArtworks(ctx, h.db)
	case q.Get("curation") != "":
		sess := sessionFrom(ctx)
		if sess == nil || !policy.Can(sess.Role, policy.Curate) {
			writeErr(w, http.StatusForbidden, "missing capability "+string(policy.Curate))
			return
		}
		artworks, err = store.ListArtworksByCuration(ctx, h.db, q.Get("curation"))
	case q.Get("page") == "" && q.Get("page_size") == "":
		artworks, err = store.ListArtworks(ctx, h.db)
	default:
		page, err := store.ListArtworksPage(ctx, h.db, queryInt(r, "page"), queryInt(r, "page_size"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artworks)
}

type artworkResponse struct {
	*models.Artwork
	Available int `json:"available"`
}

func (h *Handler) GetArtwork(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	artwork, err := store.GetArtwork(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artworkResponse{Artwork: artwork, Available: artwork.Available()})
}

// CreateArtwork handles POST /artworks. Artists always submit under their
// own account.
func (h *Handler) CreateArtwork(w http.ResponseWriter, r *http.Request) {
	var draft store.ArtworkDraft
	if !decode(w, r, &draft) {
		return
	}

	sess := sessionFrom(r.Context())
	if !policy.Can(sess.Role, policy.ManageCatalog) {
		draft.ArtistEmail = sess.Email
		draft.ArtistAccountID = &sess.AccountID
		draft.Featured = false
		if draft.Artist == "" {
			draft.Artist = sess.Name
		}
	}

	artwork, err := store.CreateArtwork(r.Context(), h.db, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artwork)
}

// editableArtwork loads the artwork and checks the caller may change it.
func (h *Handler) editableArtwork(w http.ResponseWriter, r *http.Request) (*models.Artwork, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}

	artwork, err := store.GetArtwork(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	sess := sessionFrom(r.Context())
	if !policy.CanEditArtwork(sess.Role, sess.AccountID, sess.Email, artwork) {
		h.fail(w, r, errForbidden)
		return nil, false
	}
	return artwork, true
}

func (h *Handler) UpdateArtwork(w http.ResponseWriter, r *http.Request) {
	artwork, ok := h.editableArtwork(w, r)
	if !ok {
		return
	}
	var patch store.ArtworkPatch
	if !decode(w, r, &patch) {
		return
	}

	if !policy.Can(sessionFrom(r.Context()).Role, policy.ManageCatalog) {
		patch.Featured = nil
		patch.Stock = nil
		patch.Sold = nil
	}

	updated, err := store.UpdateArtwork(r.Context(), h.db, artwork.ID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteArtwork(w http.ResponseWriter, r *http.Request) {
	artwork, ok := h.editableArtwork(w, r)
	if !ok {
		return
	}

	if err := store.DeleteArtwork(r.Context(), h.db, artwork.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStock handles PUT /artworks/{id}/stock with {"stock": n, "version": v}.
// A stale version answers 409.
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Stock   int `json:"stock"`
		Version int `json:"version"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := store.SetStockOptimistic(r.Context(), h.db, id, req.Stock, req.Version); err != nil {
		h.fail(w, r, err)
		return
	}

	available, err := store.AvailableStock(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inStock, err := store.IsInStock(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"available": available, "in_stock": inStock})
}

func (h *Handler) CurateArtwork(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var decision store.CurationDecision
	if !decode(w, r, &decision) {
		return
	}
	if decision.CuratorName == "" {
		decision.CuratorName = sessionFrom(r.Context()).Name
	}

	artwork, err := store.CurateArtwork(r.Context(), h.db, id, decision)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artwork)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	reviews, err := store.ListReviewsByArtwork(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// CreateReview handles POST /artworks/{id}/reviews. The author is always the
// signed-in account.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if !decode(w, r, &req) {
		return
	}

	sess := sessionFrom(r.Context())
	review, err := store.CreateReview(r.Context(), h.db, store.ReviewDraft{
		ArtworkID:   id,
		AuthorEmail: sess.Email,
		AuthorName:  sess.Name,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := store.DeleteReview(r.Context(), h.db, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := store.ListArtists(r.Context(), h.db)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

func (h *Handler) GetArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	artist, err := store.GetArtist(r.Context(), h.db, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (h *Handler) CreateArtist(w http.ResponseWriter, r *http.Request) {
	var draft store.ArtistDraft
	if !decode(w, r, &draft) {
		return
	}
	artist, err := store.CreateArtist(r.Context(), h.db, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artist)
}

func (h *Handler) UpdateArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch store.ArtistPatch
	if !decode(w, r, &patch) {
		return
	}
	artist, err := store.UpdateArtist(r.Context(), h.db, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (h *Handler) DeleteArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := store.DeleteArtist(r.Context(), h.db, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
