package contacts

import (
	"errors"
	"time"

	"followup-gateway/internal/models"

	"gorm.io/gorm"
)

// Store is the narrow surface this service consumes from member management:
// lookups, opted-in listing, and patches to the WhatsApp field subset.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Get(id uint) (*models.Contact, error) {
	var contact models.Contact
	if err := s.DB.First(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByLID matches a channel-internal identifier previously learned from a
// webhook.
func (s *Store) FindByLID(lid string) (*models.Contact, error) {
	var contact models.Contact
	err := s.DB.Where("whatsapp_lid = ?", lid).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindByPhone matches on a phone substring, tolerating stored numbers with
// or without country prefixes.
func (s *Store) FindByPhone(phone string) (*models.Contact, error) {
	if phone == "" {
		return nil, nil
	}
	var contact models.Contact
	err := s.DB.Where("phone LIKE ?", "%"+phone+"%").First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *Store) Save(contact *models.Contact) error {
	return s.DB.Save(contact).Error
}

// ListOptedIn returns contacts eligible for broadcast targeting.
func (s *Store) ListOptedIn() ([]models.Contact, error) {
	var list []models.Contact
	err := s.DB.Where("opt_in = ? AND phone <> ''", true).Find(&list).Error
	return list, err
}

type OptedInCounts struct {
	TotalOptedIn     int64 `json:"totalOptedIn"`
	OptedInWithPhone int64 `json:"optedInWithPhone"`
	OptedInNoPhone   int64 `json:"optedInNoPhone"`
}

func (s *Store) CountOptedIn() (*OptedInCounts, error) {
	var counts OptedInCounts
	if err := s.DB.Model(&models.Contact{}).Where("opt_in = ?", true).
		Count(&counts.TotalOptedIn).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.Contact{}).Where("opt_in = ? AND phone <> ''", true).
		Count(&counts.OptedInWithPhone).Error; err != nil {
		return nil, err
	}
	counts.OptedInNoPhone = counts.TotalOptedIn - counts.OptedInWithPhone
	return &counts, nil
}

// UpdateConsent flips the opt-in flag and stamps the matching date.
func (s *Store) UpdateConsent(id uint, optIn bool) (*models.Contact, error) {
	contact, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	contact.OptIn = optIn
	if optIn {
		contact.OptInDate = &now
		contact.OptOutDate = nil
	} else {
		contact.OptOutDate = &now
	}
	if err := s.Save(contact); err != nil {
		return nil, err
	}
	return contact, nil
}
