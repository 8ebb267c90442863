// Package receipts persists one receipt per host transaction so callers can
// look up the outcome of a call after the fact.
package receipts

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

// Receipt is the stored outcome of a host transaction.
type Receipt struct {
	ID            string        `json:"id" db:"id"`
	TxID          string        `json:"tx_id" db:"tx_id"`
	Sender        string        `json:"sender" db:"sender"`
	Contract      string        `json:"contract" db:"contract"`
	Method        string        `json:"method" db:"method"`
	Value         string        `json:"value" db:"value"`
	VMState       string        `json:"vm_state" db:"vm_state"`
	ErrorCode     string        `json:"error_code,omitempty" db:"error_code"`
	Exception     string        `json:"exception,omitempty" db:"exception"`
	Result        string        `json:"result,omitempty" db:"result"`
	Notifications Notifications `json:"notifications" db:"notifications"`
	DurationUS    int64         `json:"duration_us" db:"duration_us"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// Notification is a stored contract notification.
type Notification struct {
	Contract string            `json:"contract"`
	Name     string            `json:"name"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Notifications is stored as a JSON array.
type Notifications []Notification

// Value implements driver.Valuer.
func (n Notifications) Value() (driver.Value, error) {
	if n == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(n)
}

// Scan implements sql.Scanner.
func (n *Notifications) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*n = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("notifications: unsupported type %T", src)
	}
	return json.Unmarshal(data, n)
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Sender   string
	Contract string
	Method   string
	VMState  string
	Limit    int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

func (f Filter) match(r Receipt) bool {
	return (f.Sender == "" || r.Sender == f.Sender) &&
		(f.Contract == "" || r.Contract == f.Contract) &&
		(f.Method == "" || r.Method == f.Method) &&
		(f.VMState == "" || r.VMState == f.VMState)
}

// Store persists receipts.
type Store interface {
	Save(ctx context.Context, r Receipt) (Receipt, error)
	Get(ctx context.Context, id string) (Receipt, error)
	GetByTx(ctx context.Context, txID string) (Receipt, error)
	// List returns matching receipts, newest first.
	List(ctx context.Context, f Filter) ([]Receipt, error)
}

// FromApplicationLog builds the receipt of a finished transaction.
func FromApplicationLog(log *chain.ApplicationLog) Receipt {
	r := Receipt{
		TxID:       log.TxID,
		Sender:     chain.FormatAddress(log.Sender),
		Contract:   chain.FormatAddress(log.Contract),
		Method:     log.Method,
		Value:      log.Value.String(),
		VMState:    log.VMState,
		Exception:  log.Exception,
		DurationUS: log.Duration.Microseconds(),
		CreatedAt:  log.Timestamp,
	}
	if log.Err != nil {
		r.ErrorCode = string(errors.CodeOf(log.Err))
	}
	if len(log.Result) > 0 {
		r.Result = hex.EncodeToString(log.Result)
	}
	r.Notifications = make(Notifications, 0, len(log.Notifications))
	for _, n := range log.Notifications {
		r.Notifications = append(r.Notifications, Notification{
			Contract: chain.FormatAddress(n.Contract),
			Name:     n.Name,
			Fields:   n.Fields,
		})
	}
	return r
}

func prepare(r Receipt) Receipt {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Value == "" {
		r.Value = "0"
	}
	if r.Notifications == nil {
		r.Notifications = Notifications{}
	}
	return r
}

// Record saves a receipt for every transaction of host until the returned
// function is called. Store failures are logged and do not affect the
// transaction, which has already finished.
func Record(host *chain.Host, store Store, log *logging.Logger, timeout time.Duration) func() {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return host.Subscribe(func(appLog *chain.ApplicationLog) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := store.Save(ctx, FromApplicationLog(appLog)); err != nil {
			log.WithError(err).WithField("tx_id", appLog.TxID).Error("failed to save receipt")
		}
	})
}
