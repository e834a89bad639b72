package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autoconnect/internal/booking"
	"autoconnect/internal/session"
	"autoconnect/pkg/config"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	var (
		gatewayURL = flag.String("gateway", "", "gateway base url (defaults to http://localhost<HTTP_ADDR>)")
		email      = flag.String("email", "", "account email")
		password   = flag.String("password", "", "account password")
		carID      = flag.String("car", "", "car id to book")
		from       = flag.String("from", "", "earliest pickup date YYYY-MM-DD (defaults to the nearest free day)")
		location   = flag.String("location", "NAIA Terminal 3, Pasay", "pickup and return location")
		receipt    = flag.String("receipt", "", "JPEG receipt to upload once the price is confirmed (optional)")
		wait       = flag.Duration("wait", 2*time.Minute, "how long to wait for the admin to quote a price")
	)
	flag.Parse()

	if *email == "" || *password == "" || *carID == "" {
		fmt.Fprintln(os.Stderr, "missing -email, -password or -car")
		os.Exit(2)
	}

	cfg := config.Load()
	if *gatewayURL == "" {
		*gatewayURL = defaultGatewayURL(cfg.HTTPAddr)
	}
	c := &client{base: strings.TrimSuffix(*gatewayURL, "/"), http: &http.Client{Timeout: 30 * time.Second}}

	var login session.LoginResponse
	if err := c.call(http.MethodPost, "/v1/auth/login", map[string]string{"email": *email, "password": *password}, &login); err != nil {
		fail("login", err)
	}
	c.token = login.Token
	fmt.Printf("signed in as %s (user %s)\n", login.User.Name, login.User.ID)

	var nearest struct {
		Date string `json:"date"`
	}
	if err := c.call(http.MethodGet, "/v1/cars/"+*carID+"/nearest?from="+*from, nil, &nearest); err != nil {
		fail("nearest available date", err)
	}
	pickup, _ := time.Parse(time.DateOnly, nearest.Date)
	ret := pickup.AddDate(0, 0, 2)

	var created struct {
		Booking booking.Booking `json:"booking"`
	}
	quote := booking.QuoteInput{
		CarID:          *carID,
		PickupLocation: *location,
		ReturnLocation: *location,
		PickupDate:     pickup.Format(time.DateOnly),
		ReturnDate:     ret.Format(time.DateOnly),
		PickupTime:     "09:00",
		ReturnTime:     "17:00",
		Name:           login.User.Name,
		Email:          login.User.Email,
		Phone:          login.User.Phone,
		RentalType:     "personal",
	}
	if err := c.call(http.MethodPost, "/v1/bookings", quote, &created); err != nil {
		fail("request quote", err)
	}
	id := created.Booking.ID
	fmt.Printf("quote requested: booking_id=%s %s..%s status=%s\n", id, quote.PickupDate, quote.ReturnDate, created.Booking.Status)

	fmt.Printf("waiting up to %s for a price (set it from the admin panel)...\n", *wait)
	b, err := c.waitForPrice(id, *wait)
	if err != nil {
		fail("wait for price", err)
	}
	fmt.Printf("price quoted: %s\n", b.Price.Decimal.StringFixed(2))

	if !b.PriceAccepted {
		var confirmed struct {
			Booking booking.Booking `json:"booking"`
		}
		if err := c.call(http.MethodPost, "/v1/bookings/"+id+"/confirm-price", nil, &confirmed); err != nil {
			fail("confirm price", err)
		}
		fmt.Printf("price confirmed\n")
	}

	if *receipt != "" {
		if err := c.uploadReceipt(id, *receipt); err != nil {
			fail("upload receipt", err)
		}
		fmt.Printf("receipt uploaded\n")
	}

	var events struct {
		Items []booking.Event `json:"items"`
	}
	if err := c.call(http.MethodGet, "/v1/bookings/"+id+"/events", nil, &events); err != nil {
		fail("list events", err)
	}
	fmt.Printf("\nevents:\n")
	for _, e := range events.Items {
		fmt.Printf("  - %s %s by %s\n", e.OccurredAt.Format(time.RFC3339), e.EventType, e.Actor)
	}
}

func (c *client) waitForPrice(id string, wait time.Duration) (*booking.Booking, error) {
	deadline := time.Now().Add(wait)
	for {
		var out struct {
			Booking booking.Booking `json:"booking"`
		}
		if err := c.call(http.MethodGet, "/v1/bookings/"+id, nil, &out); err != nil {
			return nil, err
		}
		if out.Booking.Price.Valid {
			return &out.Booking, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no price after %s; booking %s stays pending", wait, id)
		}
		time.Sleep(5 * time.Second)
	}
}

func (c *client) call(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *client) uploadReceipt(id, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="receipt"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, c.base+"/v1/bookings/"+id+"/receipt", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, nil)
}

func (c *client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}

func defaultGatewayURL(httpAddr string) string {
	// httpAddr is typically ":8081" or "0.0.0.0:8081".
	addr := strings.TrimSpace(httpAddr)
	if addr == "" {
		addr = ":8081"
	}
	switch {
	case strings.HasPrefix(addr, ":"):
		return "http://localhost" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "http://localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "http://" + addr
}
