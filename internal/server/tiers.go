package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type tierView struct {
	Code       string `json:"code"`
	Label      string `json:"label"`
	Price      int64  `json:"price"`
	MemoryMB   int    `json:"memory_mb"`
	DiskMB     int    `json:"disk_mb"`
	CPUPercent int    `json:"cpu_percent"`
	Unlimited  bool   `json:"unlimited"`
}

func (s *Server) ListTiers(c *gin.Context) {
	tiers := s.catalog.List()
	resp := make([]tierView, 0, len(tiers))
	for _, tier := range tiers {
		resp = append(resp, tierView{
			Code:       string(tier.Code),
			Label:      tier.Label,
			Price:      tier.Price,
			MemoryMB:   tier.Limits.MemoryMB,
			DiskMB:     tier.Limits.DiskMB,
			CPUPercent: tier.Limits.CPUPercent,
			Unlimited:  tier.Limits.Unlimited(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
