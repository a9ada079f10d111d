package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/1F47E/geo-letters/pkg/letters"
	"github.com/1F47E/geo-letters/pkg/media"
	"github.com/1F47E/geo-letters/pkg/query"
	"github.com/gofiber/fiber/v2"
)

const (
	msgCreateRequired = "content, latitude and longitude are required"
	msgCenterRequired = "lat and lng query parameters are required"
)

type handler struct {
	svc    LetterService
	finder NearbyFinder
}

// createBody is the JSON form of a create request. Coordinates may be sent
// as numbers or strings.
type createBody struct {
	Content    string          `json:"content"`
	Latitude   json.RawMessage `json:"latitude"`
	Lat        json.RawMessage `json:"lat"`
	Longitude  json.RawMessage `json:"longitude"`
	Lng        json.RawMessage `json:"lng"`
	Visibility string          `json:"visibility"`
	UserID     *string         `json:"userId"`
}

func (h *handler) createLetter(c *fiber.Ctx) error {
	req, err := parseCreateRequest(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" || req.Latitude == "" || req.Longitude == "" {
		return jsonError(c, fiber.StatusBadRequest, msgCreateRequired)
	}

	letter, err := h.svc.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusCreated, "Virtual letter created", letter)
}

func (h *handler) nearbyLetters(c *fiber.Ctx) error {
	raw := query.RawParams{
		Lat:    firstNonEmpty(c.Query("lat"), c.Query("latitude")),
		Lng:    firstNonEmpty(c.Query("lng"), c.Query("longitude")),
		Radius: c.Query("radius"),
		Limit:  c.Query("limit"),
	}
	if raw.Lat == "" || raw.Lng == "" {
		return jsonError(c, fiber.StatusBadRequest, msgCenterRequired)
	}

	params, err := query.ParseParams(raw)
	if err != nil {
		return err
	}

	res, err := h.finder.Nearby(c.UserContext(), params)
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, res.Message(), res.Letters)
}

func (h *handler) getLetter(c *fiber.Ctx) error {
	letter, err := h.svc.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, "", letter)
}

// deleteLetter has no authorization check; any caller may delete any letter.
func (h *handler) deleteLetter(c *fiber.Ctx) error {
	letter, err := h.svc.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return jsonSuccess(c, fiber.StatusOK, "Letter deleted", letter)
}

func parseCreateRequest(c *fiber.Ctx) (letters.CreateRequest, error) {
	if c.Is("json") {
		var body createBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return letters.CreateRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		return letters.CreateRequest{
			Content:    body.Content,
			Latitude:   firstNonEmpty(rawNumber(body.Latitude), rawNumber(body.Lat)),
			Longitude:  firstNonEmpty(rawNumber(body.Longitude), rawNumber(body.Lng)),
			Visibility: body.Visibility,
			OwnerID:    body.UserID,
		}, nil
	}

	req := letters.CreateRequest{
		Content:    c.FormValue("content"),
		Latitude:   firstNonEmpty(c.FormValue("latitude"), c.FormValue("lat")),
		Longitude:  firstNonEmpty(c.FormValue("longitude"), c.FormValue("lng")),
		Visibility: c.FormValue("visibility"),
	}
	if owner := c.FormValue("userId"); owner != "" {
		req.OwnerID = &owner
	}

	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return req, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid form body")
	}
	for _, fh := range form.File["media"] {
		req.Media = append(req.Media, upload(fh))
	}
	return req, nil
}

func upload(fh *multipart.FileHeader) media.Upload {
	return media.Upload{
		OriginalName: fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// rawNumber renders a JSON number or string as text. null and other types
// yield "".
func rawNumber(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
