// Package frontend serves the rendered tabs as an HTTP JSON API.
package frontend

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/gorilla/schema"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc/status"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
	"github.com/caikit/caikit-huggingface-demo/pkg/middleware"
	"github.com/caikit/caikit-huggingface-demo/pkg/tabs"
)

const maxUploadSize = 32 << 20

// TabInfo describes one tab to a client
type TabInfo struct {
	Task        datamodel.TaskID    `json:"task"`
	Title       string              `json:"title"`
	Models      []datamodel.ModelID `json:"models"`
	InputSchema json.RawMessage     `json:"input_schema"`
}

// PredictRequest is the JSON body of a predict call
type PredictRequest struct {
	ModelID datamodel.ModelID `json:"model_id"`
	Inputs  map[string]any    `json:"inputs"`
}

type predictForm struct {
	ModelID           string   `schema:"model_id,required"`
	TextIn            *string  `schema:"text_in"`
	Sentences         []string `schema:"sentences"`
	EncodedBytesOrURL string   `schema:"encoded_bytes_or_url"`
}

type handler struct {
	tabs    *tabs.Set
	decoder *schema.Decoder
}

// NewServeMux routes the tab API:
//
//	GET  /v1/tabs
//	POST /v1/tabs/{task}/predict
//	GET  /v1/health
func NewServeMux(set *tabs.Set) (*runtime.ServeMux, error) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	h := &handler{tabs: set, decoder: decoder}

	mux := runtime.NewServeMux()
	if err := mux.HandlePath(http.MethodGet, "/v1/tabs", middleware.AccessLogMiddleware(h.listTabs)); err != nil {
		return nil, err
	}
	if err := mux.HandlePath(http.MethodPost, "/v1/tabs/{task}/predict", middleware.AccessLogMiddleware(h.predict)); err != nil {
		return nil, err
	}
	if err := mux.HandlePath(http.MethodGet, "/v1/health", h.health); err != nil {
		return nil, err
	}
	return mux, nil
}

// NewHandler wraps the tab API with CORS and cleartext HTTP/2 support
func NewHandler(set *tabs.Set, corsOrigins []string) (http.Handler, error) {
	mux, err := NewServeMux(set)
	if err != nil {
		return nil, err
	}

	c := cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	})
	return h2c.NewHandler(c(mux), &http2.Server{}), nil
}

func makeJSONResponse(w http.ResponseWriter, st int, title string, detail string) {
	w.Header().Add("Content-Type", "application/json+problem")
	w.WriteHeader(st)
	obj, _ := json.Marshal(datamodel.Error{
		Status: int32(st),
		Title:  title,
		Detail: detail,
	})
	_, _ = w.Write(obj)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) listTabs(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	infos := []TabInfo{}
	for _, t := range h.tabs.All() {
		infos = append(infos, TabInfo{
			Task:        t.Task,
			Title:       t.Title,
			Models:      t.Models,
			InputSchema: t.InputSchema(),
		})
	}
	writeJSON(w, map[string]any{"tabs": infos})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, map[string]any{"status": "SERVING", "tabs": h.tabs.Len()})
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	logger, _ := logger.GetZapLogger(r.Context())

	tab, ok := h.tabs.Get(datamodel.TaskID(pathParams["task"]))
	if !ok {
		makeJSONResponse(w, http.StatusNotFound, "Tab not found", "no tab is enabled for task "+pathParams["task"])
		return
	}

	var req PredictRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = h.parseForm(r)
	} else {
		err = json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req)
	}
	if err != nil {
		makeJSONResponse(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}

	if err := datamodel.ValidateInputs(tab.Task.Input(), req.Inputs); err != nil {
		makeJSONResponse(w, http.StatusBadRequest, "Invalid inputs", err.Error())
		return
	}
	in, err := toTabInput(req.Inputs)
	if err != nil {
		makeJSONResponse(w, http.StatusBadRequest, "Invalid inputs", err.Error())
		return
	}

	out, err := tab.Predict(r.Context(), req.ModelID, in)
	if err != nil {
		st := status.Convert(err)
		code := runtime.HTTPStatusFromCode(st.Code())
		if code >= http.StatusInternalServerError {
			logger.Error("prediction failed", zap.String("task", string(tab.Task)), zap.Error(err))
		}
		makeJSONResponse(w, code, "Prediction failed", st.Message())
		return
	}
	writeJSON(w, out)
}

// parseForm reads a multipart upload; the image file part is carried as
// base64 so it validates like a JSON request.
func (h *handler) parseForm(r *http.Request) (PredictRequest, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return PredictRequest{}, err
	}

	var form predictForm
	if err := h.decoder.Decode(&form, r.MultipartForm.Value); err != nil {
		return PredictRequest{}, err
	}

	inputs := map[string]any{}
	if form.TextIn != nil {
		inputs["text_in"] = *form.TextIn
	}
	if len(form.Sentences) > 0 {
		sentences := make([]any, len(form.Sentences))
		for i, s := range form.Sentences {
			sentences[i] = s
		}
		inputs["sentences"] = sentences
	}
	if form.EncodedBytesOrURL != "" {
		inputs["encoded_bytes_or_url"] = form.EncodedBytesOrURL
	}

	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		b, err := io.ReadAll(file)
		if err != nil {
			return PredictRequest{}, err
		}
		inputs["encoded_bytes_or_url"] = base64.StdEncoding.EncodeToString(b)
	case !errors.Is(err, http.ErrMissingFile):
		return PredictRequest{}, err
	}

	return PredictRequest{ModelID: datamodel.ModelID(form.ModelID), Inputs: inputs}, nil
}

func toTabInput(inputs map[string]any) (tabs.Input, error) {
	var in tabs.Input
	if s, ok := inputs["text_in"].(string); ok {
		in.Text = s
	}
	if list, ok := inputs["sentences"].([]any); ok {
		for _, s := range list {
			str, _ := s.(string)
			in.Sentences = append(in.Sentences, str)
		}
	}
	if v, ok := inputs["encoded_bytes_or_url"].(string); ok {
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			in.ImageURL = v
			return in, nil
		}
		if i := strings.Index(v, ";base64,"); strings.HasPrefix(v, "data:") && i > 0 {
			v = v[i+len(";base64,"):]
		}
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return in, errors.New("encoded_bytes_or_url is neither a URL nor base64")
		}
		in.Image = b
	}
	return in, nil
}
