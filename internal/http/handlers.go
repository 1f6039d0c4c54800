package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pharmpos/internal/domain"
	"pharmpos/internal/importer"
	"pharmpos/internal/invoice"
	"pharmpos/internal/repository"
	"pharmpos/internal/service"
)

// Options carries the collaborators that are optional for the API to run
type Options struct {
	Importer *importer.Importer
	Pharmacy invoice.Pharmacy
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	engine    *gin.Engine
	medicines *service.MedicineService
	bills     *service.BillService
	importer  *importer.Importer
	pharmacy  invoice.Pharmacy
	gatherer  prometheus.Gatherer
}

func NewServer(medicines *service.MedicineService, bills *service.BillService, opts Options) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	s := &Server{
		engine:    r,
		medicines: medicines,
		bills:     bills,
		importer:  opts.Importer,
		pharmacy:  opts.Pharmacy,
		gatherer:  opts.Gatherer,
	}
	if s.importer == nil {
		s.importer = importer.New(medicines)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")
	{
		medicines := v1.Group("/medicines")
		medicines.POST("", s.createMedicine)
		medicines.GET("", s.listMedicines)
		medicines.GET("/search", s.searchMedicines)
		medicines.GET(":id", s.getMedicine)
		medicines.PUT(":id", s.updateMedicine)
		medicines.DELETE(":id", s.deleteMedicine)

		v1.POST("/stock/reconcile", s.reconcileStock)
		v1.POST("/import", s.importCatalog)

		bill := v1.Group("/bill")
		bill.GET("", s.currentBill)
		bill.PUT("/customer", s.setCustomer)
		bill.POST("/select", s.selectMedicine)
		bill.DELETE("/select", s.clearSelection)
		bill.POST("/items", s.addItem)
		bill.PATCH("/items/:itemId/quantity", s.updateQuantity)
		bill.PATCH("/items/:itemId/discount", s.updateDiscount)
		bill.DELETE("/items/:itemId", s.removeItem)
		bill.POST("/save", s.saveBill)
		bill.POST("/clear", s.clearBill)
		bill.GET("/invoice", s.currentInvoice)

		saved := v1.Group("/saved-bills")
		saved.GET("", s.listSavedBills)
		saved.GET(":id", s.getSavedBill)
		saved.POST(":id/load", s.loadSavedBill)
		saved.DELETE(":id", s.deleteSavedBill)
		saved.GET(":id/invoice", s.savedInvoice)
	}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Medicine handlers
type medicineReq struct {
	Name              string                   `json:"name"`
	GenericName       string                   `json:"generic_name"`
	CompanyName       string                   `json:"company_name"`
	Type              string                   `json:"type"`
	UnitsPerBox       int64                    `json:"units_per_box"`
	LowStockThreshold int64                    `json:"low_stock_threshold"`
	PurchasePrice     decimal.Decimal          `json:"purchase_price"`
	Pricing           domain.Pricing           `json:"pricing"`
	ExpiryDate        string                   `json:"expiry_date" example:"2027-03-31"`
	Stock             *service.StockDefinition `json:"stock"`
}

func (r medicineReq) toDomain(id int64) (domain.Medicine, error) {
	m := domain.Medicine{
		ID:                id,
		Name:              r.Name,
		GenericName:       r.GenericName,
		CompanyName:       r.CompanyName,
		Type:              r.Type,
		UnitsPerBox:       r.UnitsPerBox,
		LowStockThreshold: r.LowStockThreshold,
		PurchasePrice:     r.PurchasePrice,
		Pricing:           r.Pricing,
	}
	if r.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", r.ExpiryDate)
		if err != nil {
			return m, errors.New("expiry_date must be YYYY-MM-DD")
		}
		m.ExpiryDate = &t
	}
	return m, nil
}

// @Summary Create medicine
// @Tags medicines
// @Accept json
// @Produce json
// @Param input body medicineReq true "Medicine with stock definition"
// @Success 201 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Router /api/v1/medicines [post]
func (s *Server) createMedicine(c *gin.Context) {
	var req medicineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := req.toDomain(0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var stock service.StockDefinition
	if req.Stock != nil {
		stock = *req.Stock
	}
	created, err := s.medicines.Create(c, m, stock)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Get medicine by id
// @Tags medicines
// @Produce json
// @Param id path int true "Medicine ID"
// @Success 200 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/medicines/{id} [get]
func (s *Server) getMedicine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	m, err := s.medicines.GetByID(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Update medicine
// @Description Omitting stock keeps the quantity on hand.
// @Tags medicines
// @Accept json
// @Produce json
// @Param id path int true "Medicine ID"
// @Param input body medicineReq true "Update"
// @Success 200 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/medicines/{id} [put]
func (s *Server) updateMedicine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req medicineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := req.toDomain(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.medicines.Update(c, m, req.Stock)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary Delete medicine
// @Tags medicines
// @Param id path int true "Medicine ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/medicines/{id} [delete]
func (s *Server) deleteMedicine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.medicines.Delete(c, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List medicines
// @Tags medicines
// @Produce json
// @Param q query string false "Name contains"
// @Param in_stock query bool false "Only medicines with stock"
// @Success 200 {array} domain.Medicine
// @Router /api/v1/medicines [get]
func (s *Server) listMedicines(c *gin.Context) {
	var f repository.MedicineFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("in_stock"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.InStockOnly = b
		}
	}
	list, err := s.medicines.List(c, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Fuzzy search the catalog
// @Description Matches name, type, generic and company name. In-stock medicines rank first.
// @Tags medicines
// @Produce json
// @Param q query string true "Query"
// @Success 200 {array} search.Result
// @Router /api/v1/medicines/search [get]
func (s *Server) searchMedicines(c *gin.Context) {
	res, err := s.medicines.Search(c, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reconcileReq struct {
	service.StockDefinition
	UnitsPerBox int64 `json:"units_per_box"`
}

// @Summary Reconcile stock fields
// @Description Re-derives the field that was not typed by hand from the one that was.
// @Tags stock
// @Accept json
// @Produce json
// @Param input body reconcileReq true "Stock fields"
// @Success 200 {object} units.StockFields
// @Failure 400 {object} map[string]string
// @Router /api/v1/stock/reconcile [post]
func (s *Server) reconcileStock(c *gin.Context) {
	var req reconcileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	f, err := s.medicines.Reconcile(req.StockDefinition, req.UnitsPerBox)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// @Summary Import medicines from CSV
// @Description Accepts a multipart "file" field or a raw CSV body. Comma, semicolon and tab delimiters are detected.
// @Tags medicines
// @Accept text/csv
// @Accept mpfd
// @Produce json
// @Success 200 {object} importer.Result
// @Failure 400 {object} map[string]string
// @Router /api/v1/import [post]
func (s *Server) importCatalog(c *gin.Context) {
	body := c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		body = f
	}
	res, err := s.importer.Import(c, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func writeError(c *gin.Context, err error) {
	c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrEmptyBill),
		errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrInvalidQuantity),
		errors.Is(err, importer.ErrMissingColumns):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
