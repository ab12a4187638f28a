package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/farmcart/api/internal/domain"
	pfirestore "github.com/farmcart/api/internal/platform/firestore"
	"github.com/farmcart/api/internal/repositories"
)

const userCollection = "users"

type addressDocument struct {
	CommunityName string `firestore:"communityName,omitempty"`
	ApartmentName string `firestore:"apartmentName,omitempty"`
	RoomNo        string `firestore:"roomNo,omitempty"`
	Street        string `firestore:"street,omitempty"`
	City          string `firestore:"city,omitempty"`
	Pincode       string `firestore:"pincode,omitempty"`
}

type userDocument struct {
	Name         string          `firestore:"name"`
	Mobile       string          `firestore:"mobile"`
	Email        string          `firestore:"email,omitempty"`
	PasswordHash string          `firestore:"passwordHash"`
	Role         string          `firestore:"role"`
	Address      addressDocument `firestore:"address,omitempty"`
	DeviceTokens []string        `firestore:"deviceTokens,omitempty"`
	CreatedAt    time.Time       `firestore:"createdAt"`
}

// UserRepository persists customer and admin accounts in Firestore.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// Insert creates the user document.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	_, err := r.base.Set(ctx, user.ID, fromDomainUser(user))
	return err
}

// Update overwrites the stored user document.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	_, err := r.base.Set(ctx, user.ID, fromDomainUser(user))
	return err
}

// FindByID loads the user by document ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	user := toDomainUser(doc.Data)
	user.ID = doc.ID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user, nil
}

// FindByMobile looks up the unique account registered under the mobile number.
func (r *UserRepository) FindByMobile(ctx context.Context, mobile string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	normalized := strings.TrimSpace(mobile)
	if normalized == "" {
		return domain.User{}, errors.New("mobile is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("mobile", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.WrapError("users.findbymobile", notFoundErr("user with mobile "+normalized))
	}

	user := toDomainUser(docs[0].Data)
	user.ID = docs[0].ID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = docs[0].CreateTime
	}
	return user, nil
}

// AddDeviceToken registers a push notification token for the user. Duplicate
// tokens are ignored via ArrayUnion semantics.
func (r *UserRepository) AddDeviceToken(ctx context.Context, userID string, token string) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return errors.New("device token is required")
	}

	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "deviceTokens", Value: firestore.ArrayUnion(trimmed)},
	})
	return err
}

func fromDomainUser(user domain.User) userDocument {
	tokens := make([]string, 0, len(user.DeviceTokens))
	for _, token := range user.DeviceTokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	if len(tokens) == 0 {
		tokens = nil
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return userDocument{
		Name:         strings.TrimSpace(user.Name),
		Mobile:       strings.TrimSpace(user.Mobile),
		Email:        strings.TrimSpace(user.Email),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Address: addressDocument{
			CommunityName: strings.TrimSpace(user.Address.CommunityName),
			ApartmentName: strings.TrimSpace(user.Address.ApartmentName),
			RoomNo:        strings.TrimSpace(user.Address.RoomNo),
			Street:        strings.TrimSpace(user.Address.Street),
			City:          strings.TrimSpace(user.Address.City),
			Pincode:       strings.TrimSpace(user.Address.Pincode),
		},
		DeviceTokens: tokens,
		CreatedAt:    createdAt.UTC(),
	}
}

func toDomainUser(doc userDocument) domain.User {
	return domain.User{
		Name:         doc.Name,
		Mobile:       doc.Mobile,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         domain.Role(doc.Role),
		Address: domain.Address{
			CommunityName: doc.Address.CommunityName,
			ApartmentName: doc.Address.ApartmentName,
			RoomNo:        doc.Address.RoomNo,
			Street:        doc.Address.Street,
			City:          doc.Address.City,
			Pincode:       doc.Address.Pincode,
		},
		DeviceTokens: doc.DeviceTokens,
		CreatedAt:    doc.CreatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
