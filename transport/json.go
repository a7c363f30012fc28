package transport

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
)

// DoJSON encodes payload as the request body, executes req and decodes a 2xx
// body into out. Non-2xx responses are returned without error so callers can
// map the agent's own status envelope.
func DoJSON(ctx context.Context, adapter Adapter, req Request, payload any, out any) (Response, error) {
	if adapter == nil {
		return Response{}, fail(StageSetup, nil, "transport: adapter is required", nil)
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fail(StageEncode, err, "transport: encode request body", map[string]any{"url": req.URL})
		}
		req.Body = body
	}
	headers := make(map[string]string, len(req.Headers)+2)
	maps.Copy(headers, req.Headers)
	headers["Accept"] = "application/json"
	if payload != nil {
		headers["Content-Type"] = "application/json"
	}
	req.Headers = headers

	res, err := adapter.Do(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if out == nil || !IsSuccess(res.StatusCode) || len(strings.TrimSpace(string(res.Body))) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, fail(StageDecode, err, "transport: decode response body", map[string]any{"status_code": res.StatusCode, "url": req.URL})
	}
	return res, nil
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
