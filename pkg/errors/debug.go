package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump flattens an error chain and the driver or provider details buried
// in it into something a log line can carry.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`

	StripeType      string `json:"stripe_type,omitempty"`
	StripeCode      string `json:"stripe_code,omitempty"`
	StripeRequestID string `json:"stripe_request_id,omitempty"`
	StripeStatus    int    `json:"stripe_status,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		d.StripeType = string(stripeErr.Type)
		d.StripeCode = string(stripeErr.Code)
		d.StripeRequestID = stripeErr.RequestID
		d.StripeStatus = stripeErr.HTTPStatusCode
	}
	return d
}

// Fields returns the non-empty parts of the dump keyed for structured logs.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range map[string]string{
		"pg_code":           d.PGCode,
		"pg_constraint":     d.PGConstraint,
		"pg_table":          d.PGTable,
		"pg_detail":         d.PGDetail,
		"stripe_type":       d.StripeType,
		"stripe_code":       d.StripeCode,
		"stripe_request_id": d.StripeRequestID,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	if d.StripeStatus != 0 {
		fields["stripe_status"] = d.StripeStatus
	}
	return fields
}
