package generator

import (
	"context"

	"paimonWriter/src/store"

	"github.com/pingcap/errors"
)

// Outcome is what provisioning did to a database or table.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCreated
	OutcomeExisted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExisted:
		return "existed"
	default:
		return "failed"
	}
}

// ProvisionResult reports the outcome for the database and the table.
type ProvisionResult struct {
	Database Outcome
	Table    Outcome
}

func outcomeOf(err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeCreated, nil
	case store.IsAlreadyExist(err):
		return OutcomeExisted, nil
	default:
		return OutcomeFailed, err
	}
}

// Provision makes sure the database and the table exist. An existing table keeps
// its schema, schema is only used to create a missing one.
func Provision(ctx context.Context, catalog Catalog, id store.Identifier, schema store.Schema) (ProvisionResult, error) {
	var (
		res ProvisionResult
		err error
	)
	res.Database, err = outcomeOf(catalog.CreateDatabase(ctx, id.Database, false))
	if err != nil {
		return res, errors.Annotatef(err, "provision database %s", id.Database)
	}
	res.Table, err = outcomeOf(catalog.CreateTable(ctx, id, schema, false))
	if err != nil {
		return res, errors.Annotatef(err, "provision table %s", id)
	}
	return res, nil
}
