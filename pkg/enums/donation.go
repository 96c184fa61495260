package enums

// DonationStatus maps to the donation_status enum.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "PENDING"
	DonationStatusPaid      DonationStatus = "PAID"
	DonationStatusCancelled DonationStatus = "CANCELLED"
)

var donationStatuses = []DonationStatus{
	DonationStatusPending,
	DonationStatusPaid,
	DonationStatusCancelled,
}

func (s DonationStatus) String() string { return string(s) }

func (s DonationStatus) IsValid() bool { return oneOf(s, donationStatuses) }

// ParseDonationStatus is case-insensitive; "paid" yields DonationStatusPaid.
func ParseDonationStatus(value string) (DonationStatus, error) {
	return parseFold(value, donationStatuses, "donation status")
}
