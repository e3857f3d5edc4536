package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/pkg/auth"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-payments/pkg/db"
	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-payments/pkg/security"
	"github.com/angelmondragon/storefront-payments/pkg/validation"
)

const msgEmailTaken = "has already been taken"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service resolves the checkout customer and shipping address.
type Service interface {
	Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error)
}

// ServiceParams packages the dependencies for identity resolution.
type ServiceParams struct {
	Tx       txRunner
	Outbox   outboxPublisher
	JWT      config.JWTConfig
	Password config.PasswordConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx          txRunner
	outbox      outboxPublisher
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the identity resolver.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:          params.Tx,
		outbox:      params.Outbox,
		jwtCfg:      params.JWT,
		passwordCfg: params.Password,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	input.Mobile = strings.TrimSpace(input.Mobile)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if input.UserID != nil {
		switch {
		case input.Subject == nil:
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out as a registered customer")
		case *input.Subject != *input.UserID:
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user_id does not match the authenticated customer")
		}
	}

	var (
		customer *models.Customer
		address  *models.Address
		created  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if err := s.checkReferences(ctx, repo, input); err != nil {
			return err
		}

		var err error
		customer, created, err = s.resolveCustomer(ctx, repo, input)
		if err != nil {
			return err
		}

		addressID, err := s.upsertAddress(ctx, repo, customer.ID, input)
		if err != nil {
			return err
		}
		address, err = repo.LoadAddress(ctx, addressID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload address")
		}

		if created {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventGuestCustomerCreated,
				AggregateType: enums.AggregateCustomer,
				AggregateID:   customer.ID,
				Version:       1,
				Actor:         &outbox.ActorRef{CustomerID: customer.ID, Type: string(enums.CustomerTypeGuest)},
				Data: payloads.GuestCustomerCreatedEvent{
					CustomerID: customer.ID,
					Email:      customer.Email,
				},
			})
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a customer with this email was created concurrently")
		}
		s.logError(ctx, "resolve checkout identity", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve checkout identity")
	}

	result := &ResolveResult{Address: address, User: newCustomerView(customer)}
	if customer.Type == enums.CustomerTypeGuest {
		deviceID := strings.TrimSpace(input.DeviceID)
		if deviceID == "" {
			deviceID = uuid.NewString()
		}
		token, err := auth.MintGuestToken(s.jwtCfg, s.now(), customer.ID, deviceID)
		if err != nil {
			s.logError(ctx, "mint guest token", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue guest token")
		}
		result.User.Token = token
	}
	return result, nil
}

// checkReferences validates foreign keys and email ownership, the rules that
// need the database.
func (s *service) checkReferences(ctx context.Context, repo *Repository, input ResolveInput) error {
	fields := validation.FieldErrors{}

	ok, err := repo.RegionExists(ctx, input.RegionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check region")
	}
	if !ok {
		fields.Add("region_id", "does not exist")
	}

	prefecture, err := repo.FindPrefecture(ctx, input.PrefectureID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		fields.Add("prefecture_id", "does not exist")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check prefecture")
	case prefecture.RegionID != input.RegionID:
		fields.Add("prefecture_id", "does not belong to the selected region")
	}

	if input.UserID == nil && input.Email != "" {
		_, err := repo.FindCustomerByEmail(ctx, input.Email, enums.CustomerTypeRegistered)
		switch {
		case err == nil:
			fields.Add("email", msgEmailTaken)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check email")
		}
	}
	return fields.Err()
}

func (s *service) resolveCustomer(ctx context.Context, repo *Repository, input ResolveInput) (*models.Customer, bool, error) {
	if input.UserID != nil {
		customer, err := repo.FindCustomer(ctx, *input.UserID, enums.CustomerTypeRegistered)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		return customer, false, s.updateContact(ctx, repo, customer, input)
	}

	guest, err := repo.FindCustomerByEmail(ctx, input.Email, enums.CustomerTypeGuest)
	if err == nil {
		return guest, false, s.updateContact(ctx, repo, guest, input)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest")
	}

	hash, err := security.GuestPlaceholderHash(s.passwordCfg)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate guest credentials")
	}
	mobile := input.Mobile
	guest = &models.Customer{
		Type:         enums.CustomerTypeGuest,
		Name:         input.Name,
		Email:        input.Email,
		Mobile:       &mobile,
		PasswordHash: hash,
	}
	if err := repo.CreateCustomer(ctx, guest); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a customer with this email was created concurrently")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create guest")
	}
	return guest, true, nil
}

func (s *service) updateContact(ctx context.Context, repo *Repository, customer *models.Customer, input ResolveInput) error {
	updates := map[string]any{}
	if input.Name != "" && input.Name != customer.Name {
		updates["name"] = input.Name
		customer.Name = input.Name
	}
	if input.Mobile != "" && (customer.Mobile == nil || *customer.Mobile != input.Mobile) {
		mobile := input.Mobile
		updates["mobile"] = mobile
		customer.Mobile = &mobile
	}
	if err := repo.UpdateCustomer(ctx, customer.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
	}
	return nil
}

func (s *service) upsertAddress(ctx context.Context, repo *Repository, customerID uuid.UUID, input ResolveInput) (uuid.UUID, error) {
	if input.AddressID == nil {
		address := &models.Address{
			CustomerID:   customerID,
			RegionID:     input.RegionID,
			PrefectureID: input.PrefectureID,
			City:         strings.TrimSpace(input.City),
			PostalCode:   strings.TrimSpace(input.PostalCode),
			Line1:        strings.TrimSpace(input.Line1),
			Line2:        input.Line2,
			Country:      models.DefaultAddressCountry,
		}
		if err := repo.CreateAddress(ctx, address); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		return address.ID, nil
	}

	existing, err := repo.FindOwnedAddress(ctx, *input.AddressID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found or not authorized")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	err = repo.UpdateAddress(ctx, existing.ID, customerID, map[string]any{
		"region_id":     input.RegionID,
		"prefecture_id": input.PrefectureID,
		"city":          strings.TrimSpace(input.City),
		"postal_code":   strings.TrimSpace(input.PostalCode),
		"line1":         strings.TrimSpace(input.Line1),
		"line2":         input.Line2,
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
	}
	return existing.ID, nil
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}
