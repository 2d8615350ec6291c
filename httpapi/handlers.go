package httpapi

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/hashdriveorg/hashdrive-go/ledger"
)

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"contentHash"`
	TxID        string `json:"txId"`
}

// TotalResponse is returned by GET /files/total.
type TotalResponse struct {
	TotalFiles uint64 `json:"totalFiles"`
}

// ListResponse is returned by GET /files.
type ListResponse struct {
	Files []ledger.FileRecord `json:"files"`
}

// NonceResponse is returned by GET /auth/nonce/{wallet}.
type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyRequest is the body of POST /auth/verify.
type VerifyRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

// VerifyResponse is returned by POST /auth/verify.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Wallet  string `json:"wallet"`
}

// GrantRequest is the body of POST /files/{index}/grants. Wallet and
// Signature authenticate the granting party against a fresh challenge.
type GrantRequest struct {
	Grantee   string `json:"grantee"`
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

// GrantResponse is returned by POST /files/{index}/grants.
type GrantResponse struct {
	TxID string `json:"txId"`
}

// handleUpload accepts either a multipart form with a "file" part or a raw
// body named by the filename query parameter.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)

	filename := r.URL.Query().Get("filename")
	var body io.Reader = r.Body

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		part, err := filePart(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer func() { _ = part.Close() }()
		if filename == "" {
			filename = part.FileName()
		}
		body = part
	}
	if filename == "" {
		s.writeError(w, r, errNoFilename)
		return
	}

	res, err := s.drive.Upload(r.Context(), filename, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Filename:    res.Filename,
		ContentHash: res.ContentHash,
		TxID:        res.TxID,
	})
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.drive.Total(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalResponse{TotalFiles: total})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.drive.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []ledger.FileRecord{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Files: files})
}

// handleDownload streams the file at index to the wallet named in the
// wallet header once the gate and the integrity check pass.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dl, err := s.drive.Download(r.Context(), index, r.Header.Get(HeaderWallet))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = dl.Close() }()

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Record.Filename}))
	h.Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, dl.Record.Filename, time.Time{}, dl)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	if !s.nonces.allow(clientAddr(r)) {
		w.Header().Set("Retry-After", "1")
		writeErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, "too many challenge requests")
		return
	}

	c, err := s.auth.Issue(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NonceResponse{Nonce: c.Nonce, ExpiresAt: c.ExpiresAt.UTC()})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.auth.Verify(r.Context(), req.Wallet, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Wallet: id.Wallet.String()})
}

// handleGrant records a download permission. The caller proves control of
// its wallet with a signed challenge and must be allowed to grant on the
// file.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req GrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.auth.Verify(r.Context(), req.Wallet, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.drive.CanGrant(r.Context(), index, id.Wallet)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, errNotGranting)
		return
	}

	txID, err := s.drive.Grant(r.Context(), index, req.Grantee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info().
		Str("request_id", RequestID(r.Context())).
		Uint64("index", index).
		Str("granted_by", id.Wallet.String()).
		Msg("grant recorded")
	writeJSON(w, http.StatusOK, GrantResponse{TxID: txID})
}

func pathIndex(r *http.Request) (uint64, error) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		return 0, errBadIndex
	}
	return index, nil
}

// filePart returns the "file" part of a multipart request. Parts before it
// are skipped.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errBadBody
	}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, err
			}
			return nil, errBadBody
		}
		if p.FormName() == "file" {
			return p, nil
		}
		_ = p.Close()
	}
}
