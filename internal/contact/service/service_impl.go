package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/contact/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("contact_not_found")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contact.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) ResolveByEmail(ctx context.Context, customer paymentdomain.Customer) (snowflake.ID, error) {
	email := strings.TrimSpace(customer.Email)

	// A blank email cannot identify anyone, so it always gets a new contact.
	if email != "" {
		matches, err := s.repo.FindByEmail(ctx, s.db, email)
		if err != nil {
			return 0, err
		}
		switch len(matches) {
		case 0:
		case 1:
			return matches[0].ID, nil
		default:
			return 0, fmt.Errorf("%w: %s", paymentdomain.ErrAmbiguousContact, email)
		}
	}

	var contactID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		contact := domain.Contact{
			ID:           s.genID.Generate(),
			Email:        email,
			FirstName:    strings.TrimSpace(customer.GivenName),
			LastName:     strings.TrimSpace(customer.FamilyName),
			Organization: strings.TrimSpace(customer.CompanyName),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Insert(ctx, tx, &contact); err != nil {
			return err
		}
		contactID = contact.ID

		if !customer.HasAddress() {
			return nil
		}
		return s.repo.InsertAddress(ctx, tx, &domain.Address{
			ID:          s.genID.Generate(),
			ContactID:   contact.ID,
			Line1:       strings.TrimSpace(customer.AddressLine1),
			Line2:       strings.TrimSpace(customer.AddressLine2),
			Line3:       strings.TrimSpace(customer.AddressLine3),
			City:        strings.TrimSpace(customer.City),
			Region:      strings.TrimSpace(customer.Region),
			PostalCode:  strings.TrimSpace(customer.PostalCode),
			CountryCode: strings.ToUpper(strings.TrimSpace(customer.CountryCode)),
			IsPrimary:   true,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("contact created",
		zap.String("contact_id", contactID.String()),
		zap.String("customer_id", customer.ID),
	)
	return contactID, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Contact, error) {
	contact, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrNotFound
	}
	return contact, nil
}
