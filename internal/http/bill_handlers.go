package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"pharmpos/internal/domain"
	"pharmpos/internal/invoice"
	"pharmpos/internal/service"
)

// @Summary Current bill
// @Tags bill
// @Produce json
// @Success 200 {object} domain.Bill
// @Router /api/v1/bill [get]
func (s *Server) currentBill(c *gin.Context) {
	c.JSON(http.StatusOK, s.bills.Current())
}

type customerReq struct {
	Name  string              `json:"name"`
	Phone string              `json:"phone"`
	Tier  domain.CustomerTier `json:"tier" example:"general"`
}

// @Summary Set customer details
// @Tags bill
// @Accept json
// @Produce json
// @Param input body customerReq true "Customer"
// @Success 200 {object} domain.Bill
// @Failure 400 {object} map[string]string
// @Router /api/v1/bill/customer [put]
func (s *Server) setCustomer(c *gin.Context) {
	var req customerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := s.bills.SetCustomer(req.Name, req.Phone, req.Tier)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type selectReq struct {
	MedicineID int64 `json:"medicine_id"`
}

// @Summary Select medicine for the next line
// @Tags bill
// @Accept json
// @Produce json
// @Param input body selectReq true "Medicine"
// @Success 200 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/bill/select [post]
func (s *Server) selectMedicine(c *gin.Context) {
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := s.bills.Select(c, req.MedicineID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Clear selection
// @Tags bill
// @Success 204
// @Router /api/v1/bill/select [delete]
func (s *Server) clearSelection(c *gin.Context) {
	s.bills.ClearSelection()
	c.Status(http.StatusNoContent)
}

// @Summary Add selected medicine to the bill
// @Description unit_quantity wins over box_quantity. Omitted price and discount use the customer's price list.
// @Tags bill
// @Accept json
// @Produce json
// @Param input body service.AddItemRequest true "Line"
// @Success 201 {object} domain.Bill
// @Failure 400 {object} map[string]string
// @Router /api/v1/bill/items [post]
func (s *Server) addItem(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := s.bills.AddItem(c, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

type quantityReq struct {
	Quantity int64 `json:"quantity"`
}

// @Summary Update line quantity
// @Description A quantity of zero or less removes the line.
// @Tags bill
// @Accept json
// @Produce json
// @Param itemId path string true "Line item ID"
// @Param input body quantityReq true "Quantity"
// @Success 200 {object} domain.Bill
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/bill/items/{itemId}/quantity [patch]
func (s *Server) updateQuantity(c *gin.Context) {
	var req quantityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := s.bills.UpdateQuantity(c, c.Param("itemId"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type discountReq struct {
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// @Summary Update line discount
// @Tags bill
// @Accept json
// @Produce json
// @Param itemId path string true "Line item ID"
// @Param input body discountReq true "Discount"
// @Success 200 {object} domain.Bill
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/bill/items/{itemId}/discount [patch]
func (s *Server) updateDiscount(c *gin.Context) {
	var req discountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := s.bills.UpdateDiscount(c, c.Param("itemId"), req.DiscountPercentage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary Remove line
// @Tags bill
// @Produce json
// @Param itemId path string true "Line item ID"
// @Success 200 {object} domain.Bill
// @Failure 404 {object} map[string]string
// @Router /api/v1/bill/items/{itemId} [delete]
func (s *Server) removeItem(c *gin.Context) {
	b, err := s.bills.RemoveItem(c, c.Param("itemId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary Save bill
// @Tags bill
// @Produce json
// @Success 201 {object} domain.SavedBill
// @Failure 400 {object} map[string]string
// @Router /api/v1/bill/save [post]
func (s *Server) saveBill(c *gin.Context) {
	sb, err := s.bills.Save(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sb)
}

// @Summary Clear bill
// @Tags bill
// @Produce json
// @Success 200 {object} domain.Bill
// @Router /api/v1/bill/clear [post]
func (s *Server) clearBill(c *gin.Context) {
	c.JSON(http.StatusOK, s.bills.Clear(c))
}

// @Summary Current bill invoice
// @Tags bill
// @Produce application/pdf
// @Success 200 {file} file
// @Router /api/v1/bill/invoice [get]
func (s *Server) currentInvoice(c *gin.Context) {
	s.writeInvoice(c, "invoice.pdf", s.bills.Current())
}

// @Summary List saved bills
// @Tags saved-bills
// @Produce json
// @Success 200 {array} domain.SavedBill
// @Router /api/v1/saved-bills [get]
func (s *Server) listSavedBills(c *gin.Context) {
	list, err := s.bills.ListSaved(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get saved bill
// @Tags saved-bills
// @Produce json
// @Param id path int true "Saved bill ID"
// @Success 200 {object} domain.SavedBill
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/saved-bills/{id} [get]
func (s *Server) getSavedBill(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	sb, err := s.bills.GetSaved(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// @Summary Load saved bill as the active bill
// @Description The bill being replaced is discarded like a clear.
// @Tags saved-bills
// @Produce json
// @Param id path int true "Saved bill ID"
// @Success 200 {object} domain.Bill
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/saved-bills/{id}/load [post]
func (s *Server) loadSavedBill(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	b, err := s.bills.Load(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// @Summary Delete saved bill
// @Tags saved-bills
// @Param id path int true "Saved bill ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/saved-bills/{id} [delete]
func (s *Server) deleteSavedBill(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.bills.DeleteSaved(c, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Saved bill invoice
// @Tags saved-bills
// @Produce application/pdf
// @Param id path int true "Saved bill ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Router /api/v1/saved-bills/{id}/invoice [get]
func (s *Server) savedInvoice(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	sb, err := s.bills.GetSaved(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	b := sb.Bill
	b.SourceBillID = sb.ID
	s.writeInvoice(c, fmt.Sprintf("invoice-%d.pdf", sb.ID), b)
}

func (s *Server) writeInvoice(c *gin.Context, filename string, b domain.Bill) {
	out, err := invoice.Render(s.pharmacy, b)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", out)
}
