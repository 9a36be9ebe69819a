package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/viper"

	"github.com/warrenbeats/backend/internal/config"
	"github.com/warrenbeats/backend/internal/models"
)

// Gateway callback statuses as delivered on the redirect query string.
const (
	CallbackSuccessful = "successful"
	CallbackCancelled  = "cancelled"
)

// PaymentService bridges checkout across the external gateway hop. The only
// state it keeps is a keyed, single-read, time-boxed correlation record in
// redis: session token -> (buyer, beat, transaction). Re-delivery of a
// callback finds the key gone and fails with ErrInvalidSession.
type PaymentService struct {
	redis      *redis.Client
	inventory  *InventoryService
	ledger     *LedgerService
	config     *config.CheckoutConfig
	httpClient *http.Client
}

func NewPaymentService(redisClient *redis.Client, inventory *InventoryService, ledger *LedgerService, cfg *config.CheckoutConfig) *PaymentService {
	return &PaymentService{
		redis:      redisClient,
		inventory:  inventory,
		ledger:     ledger,
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Customer is the payer identity forwarded to the gateway.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phonenumber"`
}

// CheckoutSession correlates the gateway round trip with the beat and buyer
// that initiated it.
type CheckoutSession struct {
	TxRef   string `json:"tx_ref"`
	TxID    int    `json:"tx_id"`
	BeatID  int    `json:"beat_id"`
	BuyerID int    `json:"buyer_id"`
}

// Checkout is what the purchase endpoint returns to the user agent.
type Checkout struct {
	TxRef       string `json:"tx_ref"`
	PaymentLink string `json:"payment_link"`
	QRImage     string `json:"qr_image,omitempty"` // base64 PNG of the link
	ExpiresIn   int    `json:"expires_in"`         // seconds
}

func sessionKey(txRef string) string {
	return fmt.Sprintf("checkout:session:%s", txRef)
}

// BeginCheckout reserves the beat, opens a pending ledger entry, stores the
// correlation record and requests a payment link from the gateway. On
// gateway failure the transaction is failed (which attempts to free the
// hold) and the session record is discarded.
func (s *PaymentService) BeginCheckout(ctx context.Context, buyerID, beatID int, method string, customer Customer) (*Checkout, error) {
	// Refuse before reserving anything: without the session store the
	// gateway round trip can never be correlated back.
	if s.redis == nil {
		return nil, ErrSessionStore
	}

	beat, err := s.inventory.Reserve(ctx, beatID)
	if err != nil {
		return nil, err
	}

	txRef := "WPB-" + uuid.NewString()
	tx, err := s.ledger.Record(ctx, buyerID, beatID, beat.Price, method, txRef)
	if err != nil {
		// The hold self-expires; nothing else to unwind yet.
		return nil, err
	}

	session := CheckoutSession{TxRef: txRef, TxID: tx.ID, BeatID: beatID, BuyerID: buyerID}
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, sessionKey(txRef), payload, s.config.ReservationTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	link, err := s.createPaymentLink(ctx, txRef, beat, customer)
	if err != nil {
		log.Printf("[PAYMENT] Link creation failed for tx %d: %v", tx.ID, err)
		s.redis.Del(ctx, sessionKey(txRef))
		if terr := s.ledger.Transition(ctx, tx.ID, models.TxFailed); terr != nil {
			log.Printf("[PAYMENT] Failed to fail transaction %d: %v", tx.ID, terr)
		}
		return nil, err
	}

	checkout := &Checkout{
		TxRef:       txRef,
		PaymentLink: link,
		ExpiresIn:   int(s.config.ReservationTTL.Seconds()),
	}
	if png, qerr := qrcode.Encode(link, qrcode.Medium, 256); qerr == nil {
		checkout.QRImage = base64.StdEncoding.EncodeToString(png)
	}

	log.Printf("[PAYMENT] Checkout started: tx_ref=%s, beat=%d, buyer=%d", txRef, beatID, buyerID)
	return checkout, nil
}

// ResolveCallback consumes the correlation record exactly once and
// dispatches the ledger transition the gateway status implies. A missing
// record is terminal for the request; the user must re-initiate.
func (s *PaymentService) ResolveCallback(ctx context.Context, status, txRef string) (*CheckoutSession, error) {
	if s.redis == nil {
		return nil, ErrSessionStore
	}

	data, err := s.redis.GetDel(ctx, sessionKey(txRef)).Bytes()
	if err == redis.Nil {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout session: %w", err)
	}

	var session CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("corrupt checkout session %s: %w", txRef, err)
	}

	switch status {
	case CallbackSuccessful:
		err = s.ledger.Transition(ctx, session.TxID, models.TxCompleted)
	case CallbackCancelled:
		err = s.ledger.Transition(ctx, session.TxID, models.TxCancelled)
	default:
		// Anything the gateway sends that is not successful/cancelled is a
		// failure.
		err = s.ledger.Transition(ctx, session.TxID, models.TxFailed)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYMENT] Callback resolved: tx_ref=%s, status=%s", txRef, status)
	return &session, nil
}

type paymentLinkRequest struct {
	TxRef       string   `json:"tx_ref"`
	Amount      string   `json:"amount"`
	Currency    string   `json:"currency"`
	RedirectURL string   `json:"redirect_url"`
	Customer    Customer `json:"customer"`
	Custom      struct {
		Title string `json:"title"`
		Logo  string `json:"logo,omitempty"`
	} `json:"customizations"`
}

type paymentLinkResponse struct {
	Status string `json:"status"`
	Data   struct {
		Link string `json:"link"`
	} `json:"data"`
}

// createPaymentLink requests a hosted payment page from the gateway. The
// credential is read at the point of use; its absence aborts this request
// only.
func (s *PaymentService) createPaymentLink(ctx context.Context, txRef string, beat *models.Beat, customer Customer) (string, error) {
	secret := viper.GetString("gateway.secret_key")
	if secret == "" {
		return "", fmt.Errorf("%w: gateway credential not configured", ErrGateway)
	}

	reqBody := paymentLinkRequest{
		TxRef:       txRef,
		Amount:      fmt.Sprintf("%d.%02d", beat.Price/100, beat.Price%100),
		Currency:    s.config.Currency,
		RedirectURL: s.config.CallbackURL,
		Customer:    customer,
	}
	reqBody.Custom.Title = s.config.PaymentTitle
	reqBody.Custom.Logo = s.config.PaymentLogo

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayBaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: gateway returned status %d", ErrGateway, resp.StatusCode)
	}

	var linkResp paymentLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&linkResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if linkResp.Data.Link == "" {
		return "", fmt.Errorf("%w: no payment link in response", ErrGateway)
	}

	return linkResp.Data.Link, nil
}
