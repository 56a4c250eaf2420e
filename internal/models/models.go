package models

type AuthorizationRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type CreateOrderRequest struct {
	TotalAmount int64 `json:"totalAmount"`
	PointsUsed  int64 `json:"pointsUsed"`
	CardAmount  int64 `json:"cardAmount"`
}

type CreateOrderResponse struct {
	OrderNo          string `json:"orderNo"`
	Status           string `json:"status"`
	PaymentCompleted bool   `json:"paymentCompleted"`
	PaymentMethod    string `json:"paymentMethod"`
}

type CallbackResponse struct {
	Success     bool   `json:"success"`
	OrderNo     string `json:"orderNo"`
	ResultCode  string `json:"resultCode,omitempty"`
	ResultMsg   string `json:"resultMsg,omitempty"`
	IsDuplicate bool   `json:"isDuplicate,omitempty"`
}

type RefundRequest struct {
	TID     string `json:"tid,omitempty"`
	OrderNo string `json:"orderNo,omitempty"`
	Reason  string `json:"reason"`
}

type PointsRefundRequest struct {
	Reason string `json:"reason"`
}

type PointsRefundResponse struct {
	Success        bool   `json:"success"`
	OrderNo        string `json:"orderNo"`
	RefundedPoints int64  `json:"refundedPoints"`
}

type RefundResponse struct {
	Success     bool   `json:"success"`
	OrderNo     string `json:"orderNo"`
	Amount      int64  `json:"amount"`
	ResultCode  string `json:"resultCode,omitempty"`
	ResultMsg   string `json:"resultMsg,omitempty"`
	IsDuplicate bool   `json:"isDuplicate,omitempty"`
}

type PaymentEntryResponse struct {
	TID         string `json:"tid,omitempty"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	ResultCode  string `json:"resultCode,omitempty"`
	ResultMsg   string `json:"resultMsg,omitempty"`
	Refundable  bool   `json:"refundable"`
	PaymentDate string `json:"paymentDate"`
}

type OrderStatusResponse struct {
	OrderNo     string                 `json:"orderNo"`
	Status      string                 `json:"status"`
	TotalAmount int64                  `json:"totalAmount"`
	PointsUsed  int64                  `json:"pointsUsed"`
	CardAmount  int64                  `json:"cardAmount"`
	CreatedAt   string                 `json:"createdAt"`
	Payments    []PaymentEntryResponse `json:"payments"`
}

type GetHistoryResponse []OrderStatusResponse
