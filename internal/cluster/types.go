package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Envelope result values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Node is a cluster member as stored in the membership registry.
type Node struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// Record is a replicated data entry. Records are immutable once committed.
type Record struct {
	ID        string `json:"data_id" validate:"required"`
	Raw       string `json:"raw"`
	Signature string `json:"signature"`
}

// UnmarshalJSON accepts "id" as an alias of "data_id".
func (r *Record) UnmarshalJSON(b []byte) error {
	var aux struct {
		DataID    string `json:"data_id"`
		ID        string `json:"id"`
		Raw       string `json:"raw"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.ID = aux.DataID
	if r.ID == "" {
		r.ID = aux.ID
	}
	r.Raw = aux.Raw
	r.Signature = aux.Signature
	return nil
}

// LeaderInfo is the payload of GET /leader/.
type LeaderInfo struct {
	Leader string `json:"leader"`
}

// Response is the envelope every RPC answers with.
type Response struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data,omitempty"`
	Msg    string          `json:"msg,omitempty"`
}

var validate = validator.New()

// ValidateNode checks that a node carries both name and address.
func ValidateNode(n Node) error {
	if err := validate.Struct(n); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateRecord checks that a record carries an id.
func ValidateRecord(r Record) error {
	if err := validate.Struct(r); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(fields, ", "))
}

// URL joins a node address and an RPC path. Addresses without a scheme are
// treated as plain http.
func URL(addr, path string) string {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	return strings.TrimRight(url, "/") + path
}

// WriteOK writes an "ok" envelope, with data when it is not nil.
func WriteOK(w http.ResponseWriter, data any) {
	resp := Response{Result: ResultOK}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			WriteError(w, fmt.Sprintf("encode response: %v", err))
			return
		}
		resp.Data = raw
	}
	writeResponse(w, resp)
}

// WriteError writes an "error" envelope carrying msg.
func WriteError(w http.ResponseWriter, msg string) {
	writeResponse(w, Response{Result: ResultError, Msg: msg})
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PutJSON sends body as JSON with PUT and decodes the response into out.
func PutJSON(ctx context.Context, url string, body any, out any) error {
	return doJSON(ctx, httpClient, http.MethodPut, url, body, out)
}

func doJSON(ctx context.Context, client *http.Client, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(reqBody)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
