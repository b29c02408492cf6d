package dto

type BlockRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

type UnblockRequest struct {
	Address string `json:"address"`
}

type CheckRequest struct {
	Address string `json:"address"`
	Force   bool   `json:"force"`
}
