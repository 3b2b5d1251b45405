package listing

import "time"

type Listing struct {
	ListingID    string    `gorm:"column:listing_id;type:varchar(255);primaryKey;not null" json:"listing_id"              validate:"required"`
	Provider     string    `gorm:"column:provider;type:varchar(64);index"                 json:"provider"`
	SearchID     *string   `gorm:"column:search_id;type:varchar(255);index"               json:"search_id,omitempty"`
	Title        *string   `gorm:"column:title;type:text"                                 json:"title,omitempty"`
	Address      *string   `gorm:"column:address;type:text"                               json:"address,omitempty"`
	City         *string   `gorm:"column:city;type:varchar(128)"                          json:"city,omitempty"`
	State        *string   `gorm:"column:state;type:varchar(64)"                          json:"state,omitempty"`
	Zipcode      *string   `gorm:"column:zipcode;type:varchar(16)"                        json:"zipcode,omitempty"`
	Price        *int      `gorm:"column:price"                                           json:"price,omitempty"`
	Beds         *float64  `gorm:"column:beds"                                            json:"beds,omitempty"`
	Baths        *float64  `gorm:"column:baths"                                           json:"baths,omitempty"`
	Sqft         *int      `gorm:"column:sqft"                                            json:"sqft,omitempty"`
	URL          *string   `gorm:"column:url;type:text"                                   json:"url,omitempty"`
	ContactPhone *string   `gorm:"column:contact_phone;type:varchar(32)"                  json:"contact_phone,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"                       json:"-"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"                       json:"-"`
}

func (Listing) TableName() string {
	return "listings"
}

// Details is the subset shown next to a conversation summary.
type Details struct {
	Title   *string  `json:"title"`
	Address *string  `json:"address"`
	City    *string  `json:"city"`
	State   *string  `json:"state"`
	Zipcode *string  `json:"zipcode"`
	Price   *int     `json:"price"`
	Beds    *float64 `json:"beds"`
	Baths   *float64 `json:"baths"`
	Sqft    *int     `json:"sqft"`
	URL     *string  `json:"url"`
}

func (listing *Listing) Details() Details {
	return Details{
		Title:   listing.Title,
		Address: listing.Address,
		City:    listing.City,
		State:   listing.State,
		Zipcode: listing.Zipcode,
		Price:   listing.Price,
		Beds:    listing.Beds,
		Baths:   listing.Baths,
		Sqft:    listing.Sqft,
		URL:     listing.URL,
	}
}

// Phone returns the contact number, empty when unknown.
func (listing *Listing) Phone() string {
	if listing.ContactPhone == nil {
		return ""
	}

	return *listing.ContactPhone
}

func deref(value *string) string {
	if value == nil {
		return ""
	}

	return *value
}

func (listing *Listing) AddressText() string {
	return deref(listing.Address)
}

func (listing *Listing) TitleText() string {
	return deref(listing.Title)
}
