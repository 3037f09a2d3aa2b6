package keymap

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Mapping binds each in-game action to between 1 and 8 keyboard key codes.
type Mapping struct {
	Up    []string `json:"up"    validate:"required,min=1,max=8"`
	Down  []string `json:"down"  validate:"required,min=1,max=8"`
	Left  []string `json:"left"  validate:"required,min=1,max=8"`
	Right []string `json:"right" validate:"required,min=1,max=8"`
	Shoot []string `json:"shoot" validate:"required,min=1,max=8"`
}

// DefaultMapping is what every user starts from and what a corrupted stored
// mapping falls back to.
func DefaultMapping() Mapping {
	return Mapping{
		Up:    []string{"KeyW", "ArrowUp"},
		Down:  []string{"KeyS", "ArrowDown"},
		Left:  []string{"KeyA", "ArrowLeft"},
		Right: []string{"KeyD", "ArrowRight"},
		Shoot: []string{"Space"},
	}
}

var ErrInvalidMapping = errors.New("invalid keymap shape")

type IKeymapService interface {
	Get(ctx context.Context, userID string) (Mapping, error)
	Set(ctx context.Context, userID string, m Mapping) (Mapping, error)
}

type keymapService struct {
	db       *sql.DB
	validate *validator.Validate
}

func NewKeymapService(db *sql.DB) IKeymapService {
	return &keymapService{db: db, validate: validator.New()}
}

// Get returns the stored mapping, or the default when the user has none.
// A stored row that no longer matches the expected shape also degrades to
// the default rather than erroring.
func (svc *keymapService) Get(ctx context.Context, userID string) (Mapping, error) {
	var raw []byte
	err := svc.db.QueryRowContext(ctx,
		`SELECT mapping FROM keymaps WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultMapping(), nil
	}
	if err != nil {
		return Mapping{}, err
	}

	var m Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return DefaultMapping(), nil
	}
	if err := svc.validate.Struct(m); err != nil {
		return DefaultMapping(), nil
	}
	return m, nil
}

func (svc *keymapService) Set(ctx context.Context, userID string, m Mapping) (Mapping, error) {
	if err := svc.validate.Struct(m); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return Mapping{}, err
	}

	const upsert = `
	  INSERT INTO keymaps (user_id, mapping)
	       VALUES ($1, $2)
	  ON CONFLICT (user_id) DO UPDATE
	        SET mapping = EXCLUDED.mapping`
	if _, err := svc.db.ExecContext(ctx, upsert, userID, raw); err != nil {
		return Mapping{}, err
	}
	return m, nil
}
