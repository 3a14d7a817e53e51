package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/dropsched/internal/internaltypes"
)

const (
	KeyDefaultLink        = "default_link"
	KeyPromoOnePerUser    = "promo_one_per_user"
	KeyPromoDMTemplate    = "promocod_dm_template"
	KeyPromoGroupTemplate = "promocod_group_template"
	KeyRandyDMTemplate    = "randy_dm_template"
	KeyRandyGroupTemplate = "randy_group_template"
)

var known = map[string]struct{}{
	KeyDefaultLink:        {},
	KeyPromoOnePerUser:    {},
	KeyPromoDMTemplate:    {},
	KeyPromoGroupTemplate: {},
	KeyRandyDMTemplate:    {},
	KeyRandyGroupTemplate: {},
}

type Store interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
}

type Service struct{ store Store }

func NewService(store Store) *Service { return &Service{store: store} }

// All returns every known key; missing ones are empty strings.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(map[string]string, len(known))
	for k := range known {
		out[k] = stored[k]
	}
	return out, nil
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if _, ok := known[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", internaltypes.ErrInvalidArgument, key)
	}
	if key == KeyPromoOnePerUser {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean", internaltypes.ErrInvalidArgument, key)
		}
		value = strconv.FormatBool(b)
	}
	return s.store.PutSetting(ctx, key, value)
}

// Bool reads a boolean setting, returning def when unset.
func (s *Service) Bool(ctx context.Context, key string, def bool) (bool, error) {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	v, ok := stored[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}
