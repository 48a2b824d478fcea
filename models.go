package paypay

// Response payload models. Field names mirror the BFF's JSON; fields the
// backend omits stay at their zero value.

// ProfileInfo is the authenticated user's profile.
type ProfileInfo struct {
	Name           string `json:"name"`
	ExternalUserID string `json:"externalUserId"`
	Icon           string `json:"icon"`
}

// BalanceInfo is the wallet balance breakdown. All amounts are yen.
type BalanceInfo struct {
	AllBalance     int `json:"allBalance"`
	UseableBalance int `json:"useableBalance"`
	MoneyLight     int `json:"moneyLight"`
	Money          int `json:"money"`
	Points         int `json:"points"`
}

// LinkInfo describes a payment link.
type LinkInfo struct {
	Amount      int    `json:"amount"`
	MoneyLight  int    `json:"moneyLight"`
	Money       int    `json:"money"`
	HasPassword bool   `json:"hasPassword"`
	ChatRoomID  string `json:"chatRoomId"`
	Status      string `json:"status"`
	OrderID     string `json:"orderId"`
	LinkID      string `json:"linkId"`
}

// CreateLinkResult is the outcome of creating a payment link.
type CreateLinkResult struct {
	Link       string `json:"link"`
	ChatRoomID string `json:"chatRoomId"`
	OrderID    string `json:"orderId"`
}

// P2PCodeResult is the outcome of creating a receive QR code.
type P2PCodeResult struct {
	P2PCode string `json:"p2pcode"`
}

// SendMoneyResult is the outcome of a direct transfer.
type SendMoneyResult struct {
	ChatRoomID string `json:"chatRoomId"`
	OrderID    string `json:"orderId"`
}

// UserSearchResult is one matched user from a P2P search.
type UserSearchResult struct {
	Name           string `json:"name"`
	Icon           string `json:"icon"`
	ExternalUserID string `json:"externalUserId"`
}

// ChatRoomResult is the outcome of initializing a chat room.
type ChatRoomResult struct {
	ChatRoomID string `json:"chatroomId"`
}

// BarcodeInfo describes a scanned QR or barcode. Amount is nil for codes
// without a fixed amount.
type BarcodeInfo struct {
	Amount         *int   `json:"amount"`
	ExternalUserID string `json:"externalUserId"`
}

// HistoryItem is one payment or point history entry.
type HistoryItem struct {
	OrderID         string `json:"orderId"`
	Amount          int    `json:"amount"`
	TransactionType string `json:"transactionType"`
	Datetime        string `json:"datetime"`
	Description     string `json:"description"`
}
