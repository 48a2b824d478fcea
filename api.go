package paypay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/paypay-unofficial/paypay-mobile-go/transport"
)

// Mobile BFF endpoints.
const (
	endpointGetProfile          = "/bff/v2/getProfile"
	endpointGetBalance          = "/bff/v2/getBalance"
	endpointGetHistory          = "/bff/v2/getHistory"
	endpointGetPointHistory     = "/bff/v2/getPointHistory"
	endpointGetChatRooms        = "/bff/v2/getChatRooms"
	endpointGetChatRoomMessages = "/bff/v2/getChatRoomMessages"
	endpointSendMessage         = "/bff/v2/sendMessage"
	endpointInitializeChatroom  = "/bff/v2/initializeChatroom"
	endpointSearchP2PUser       = "/bff/v2/searchP2PUser"
	endpointSendMoney           = "/bff/v2/sendMoney"
	endpointCreateLink          = "/bff/v2/createLink"
	endpointLinkCheck           = "/bff/v2/executeLink/check"
	endpointLinkReceive         = "/bff/v2/executeLink/receive"
	endpointLinkReject          = "/bff/v2/executeLink/reject"
	endpointLinkCancel          = "/bff/v2/executeLink/cancel"
	endpointCreateP2PCode       = "/bff/v2/createP2PCode"
	endpointGetBarcodeInfo      = "/bff/v2/getBarcodeInfo"
	endpointSetMoneyPriority    = "/bff/v2/setMoneyPriority"
)

// Chat room identifiers arrive prefixed by the chat provider.
const chatRoomPrefix = "sendbird_group_channel_"

var linkIDRe = regexp.MustCompile(`id=([A-Za-z0-9]+)`)

// Call issues an authenticated request against an arbitrary endpoint and
// returns the raw envelope payload. Endpoints wrapped below are preferred;
// this is the escape hatch for the rest of the API surface.
func (c *Client) Call(ctx context.Context, method, endpoint string, query url.Values, payload any) (json.RawMessage, error) {
	if err := c.auth.Gate(); err != nil {
		return nil, err
	}

	out, err := c.pipe.Call(ctx, method, endpoint, query, payload)
	if !errors.Is(err, transport.ErrTokenExpired) || !c.autoRefresh {
		return out, err
	}

	// Expired bearer: refresh once and replay. Anything but a clean refresh
	// surfaces the original expiry to the caller.
	pair, tokErr := c.sess.Tokens.Current()
	if tokErr != nil || pair.RefreshToken == "" {
		return nil, err
	}
	if refreshErr := c.auth.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}
	c.log.Debug("replaying call after token refresh", zap.String("endpoint", endpoint))
	return c.pipe.Call(ctx, method, endpoint, query, payload)
}

// GetProfile fetches the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*ProfileInfo, error) {
	payload, err := c.Call(ctx, "GET", endpointGetProfile, nil, nil)
	if err != nil {
		return nil, err
	}
	var out ProfileInfo
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance fetches the wallet balance breakdown.
func (c *Client) GetBalance(ctx context.Context) (*BalanceInfo, error) {
	payload, err := c.Call(ctx, "GET", endpointGetBalance, nil, nil)
	if err != nil {
		return nil, err
	}
	var out BalanceInfo
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHistory fetches the most recent payment history entries.
func (c *Client) GetHistory(ctx context.Context, size int) ([]HistoryItem, error) {
	if size <= 0 {
		size = 20
	}
	query := url.Values{"size": {strconv.Itoa(size)}}
	payload, err := c.Call(ctx, "GET", endpointGetHistory, query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		History []HistoryItem `json:"history"`
	}
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// GetPointHistory fetches the point transaction history.
func (c *Client) GetPointHistory(ctx context.Context) ([]HistoryItem, error) {
	payload, err := c.Call(ctx, "GET", endpointGetPointHistory, nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		History []HistoryItem `json:"history"`
	}
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// GetChatRooms fetches the user's direct-message rooms. Room shapes vary by
// room type, so entries are returned raw.
func (c *Client) GetChatRooms(ctx context.Context, size int) ([]json.RawMessage, error) {
	if size <= 0 {
		size = 20
	}
	query := url.Values{"size": {strconv.Itoa(size)}}
	payload, err := c.Call(ctx, "GET", endpointGetChatRooms, query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		ChatRooms []json.RawMessage `json:"chatRooms"`
	}
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return out.ChatRooms, nil
}

// GetChatRoomMessages fetches the messages of one room. The provider prefix
// on the room ID is accepted and stripped.
func (c *Client) GetChatRoomMessages(ctx context.Context, chatRoomID string) ([]json.RawMessage, error) {
	chatRoomID = strings.TrimPrefix(chatRoomID, chatRoomPrefix)
	payload, err := c.Call(ctx, "GET", endpointGetChatRoomMessages+"/"+chatRoomID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a text message into a chat room.
func (c *Client) SendMessage(ctx context.Context, chatRoomID, message string) error {
	_, err := c.Call(ctx, "POST", endpointSendMessage, nil, map[string]string{
		"chatRoomId": chatRoomID,
		"message":    message,
	})
	return err
}

// InitializeChatRoom opens (or returns) the chat room with a user.
func (c *Client) InitializeChatRoom(ctx context.Context, externalUserID string) (*ChatRoomResult, error) {
	payload, err := c.Call(ctx, "POST", endpointInitializeChatroom, nil, map[string]string{
		"externalUserId": externalUserID,
	})
	if err != nil {
		return nil, err
	}
	var out ChatRoomResult
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchP2PUser looks a user up by ID or display name. global switches
// between global search and friend search; order selects among multiple
// friend matches.
func (c *Client) SearchP2PUser(ctx context.Context, userID string, global bool, order int) (*UserSearchResult, error) {
	query := url.Values{
		"userId":   {userID},
		"isGlobal": {strconv.FormatBool(global)},
	}
	payload, err := c.Call(ctx, "GET", endpointSearchP2PUser, query, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Users []UserSearchResult `json:"users"`
	}
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	if len(out.Users) == 0 {
		return nil, ErrUserNotFound
	}
	if order < 0 || order >= len(out.Users) {
		return nil, fmt.Errorf("%w: match index %d out of range", ErrUserNotFound, order)
	}
	return &out.Users[order], nil
}

// SendMoney transfers amount yen to the user identified by receiverID.
func (c *Client) SendMoney(ctx context.Context, amount int, receiverID string) (*SendMoneyResult, error) {
	payload, err := c.Call(ctx, "POST", endpointSendMoney, nil, map[string]any{
		"amount":     amount,
		"receiverId": receiverID,
	})
	if err != nil {
		return nil, err
	}
	var out SendMoneyResult
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLink creates a payment link over amount yen, optionally protected
// by a passcode.
func (c *Client) CreateLink(ctx context.Context, amount int, passcode string) (*CreateLinkResult, error) {
	body := map[string]any{"amount": amount}
	if passcode != "" {
		body["passcode"] = passcode
	}
	payload, err := c.Call(ctx, "POST", endpointCreateLink, nil, body)
	if err != nil {
		return nil, err
	}
	var out CreateLinkResult
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LinkCheck fetches the state of a payment link. web routes through the web
// portal API instead of the mobile BFF; both accept a full link URL or a
// bare link ID.
func (c *Client) LinkCheck(ctx context.Context, urlOrID string, web bool) (*LinkInfo, error) {
	linkID := extractLinkID(urlOrID)

	endpoint := endpointLinkCheck + "/" + linkID
	if web {
		endpoint = c.webBaseURL + "/portal/api/v2/link/check/" + linkID
	}
	payload, err := c.Call(ctx, "GET", endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	var out LinkInfo
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	if out.LinkID == "" {
		out.LinkID = linkID
	}
	return &out, nil
}

// LinkReceive accepts a payment link. password unlocks protected links;
// info skips the extra check round trip when already fetched.
func (c *Client) LinkReceive(ctx context.Context, urlOrID, password string, info *LinkInfo) error {
	linkID := extractLinkID(urlOrID)
	if info == nil {
		fetched, err := c.LinkCheck(ctx, linkID, false)
		if err != nil {
			return err
		}
		info = fetched
	}

	body := map[string]string{
		"linkId":  linkID,
		"orderId": info.OrderID,
	}
	if password != "" {
		body["password"] = password
	}
	_, err := c.Call(ctx, "POST", endpointLinkReceive, nil, body)
	return err
}

// LinkReject declines a payment link.
func (c *Client) LinkReject(ctx context.Context, urlOrID string, info *LinkInfo) error {
	return c.executeLink(ctx, endpointLinkReject, urlOrID, info)
}

// LinkCancel cancels a payment link the user created.
func (c *Client) LinkCancel(ctx context.Context, urlOrID string, info *LinkInfo) error {
	return c.executeLink(ctx, endpointLinkCancel, urlOrID, info)
}

func (c *Client) executeLink(ctx context.Context, endpoint, urlOrID string, info *LinkInfo) error {
	linkID := extractLinkID(urlOrID)
	if info == nil {
		fetched, err := c.LinkCheck(ctx, linkID, false)
		if err != nil {
			return err
		}
		info = fetched
	}
	_, err := c.Call(ctx, "POST", endpoint, nil, map[string]string{
		"linkId":  linkID,
		"orderId": info.OrderID,
	})
	return err
}

// CreateP2PCode creates a QR code for receiving money. amount 0 creates an
// open-amount code.
func (c *Client) CreateP2PCode(ctx context.Context, amount int) (*P2PCodeResult, error) {
	body := map[string]any{}
	if amount > 0 {
		body["amount"] = amount
	}
	payload, err := c.Call(ctx, "POST", endpointCreateP2PCode, nil, body)
	if err != nil {
		return nil, err
	}
	var out P2PCodeResult
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBarcodeInfo resolves a scanned PayPay QR or barcode URL.
func (c *Client) GetBarcodeInfo(ctx context.Context, codeURL string) (*BarcodeInfo, error) {
	payload, err := c.Call(ctx, "POST", endpointGetBarcodeInfo, nil, map[string]string{
		"url": codeURL,
	})
	if err != nil {
		return nil, err
	}
	var out BarcodeInfo
	if err := decodePayload(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetMoneyPriority selects which balance pays first: Money when money is
// true, Money Light otherwise.
func (c *Client) SetMoneyPriority(ctx context.Context, money bool) error {
	priority := "MONEY_LIGHT"
	if money {
		priority = "MONEY"
	}
	_, err := c.Call(ctx, "POST", endpointSetMoneyPriority, nil, map[string]string{
		"priority": priority,
	})
	return err
}

// extractLinkID pulls the link ID out of a payment link URL; bare IDs pass
// through.
func extractLinkID(urlOrID string) string {
	if m := linkIDRe.FindStringSubmatch(urlOrID); m != nil {
		return m[1]
	}
	if idx := strings.LastIndex(urlOrID, "/"); idx >= 0 {
		return urlOrID[idx+1:]
	}
	return urlOrID
}

func decodePayload(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("paypay: decode payload: %w", err)
	}
	return nil
}
