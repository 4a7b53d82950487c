package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/crawler"
	"github.com/shkang-dev/ipo-crawler/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CalendarURL = "http://example.test/cal?str4=%d&str5=%d"
	cfg.Delay = 0
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

const calendarPage = `<html><body><table>
<tr><td class="day">5</td><td><a href="/view?code=101">알파테크</a></td></tr>
<tr><td class="day">12</td><td><a href="/view?code=102">베타소재</a></td></tr>
<tr><td class="day">20</td><td><a href="/view?code=103">감마스팩2호</a></td></tr>
<tr><td class="day">25</td><td><a href="/view?code=104">델타바이오</a></td></tr>
<tr><td class="day">27</td><td><a href="/view?code=101">알파테크</a></td></tr>
</table></body></html>`

func TestBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{8, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClassifyFetchError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		want       models.FailureReason
	}{
		{"context timeout", context.DeadlineExceeded, 0, models.ReasonTimeout},
		{"net timeout", &net.DNSError{IsTimeout: true}, 0, models.ReasonTimeout},
		{"not found", errors.New("Not Found"), http.StatusNotFound, models.ReasonNotFound},
		{"not found without error", nil, http.StatusNotFound, models.ReasonNotFound},
		{"server error", errors.New("Internal Server Error"), http.StatusInternalServerError, models.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyFetchError(tt.err, tt.statusCode)
			if err == nil {
				t.Fatal("classifyFetchError() returned nil")
			}
			if got := crawler.Reason(err); got != tt.want {
				t.Errorf("Reason(classifyFetchError(%v, %d)) = %s, want %s", tt.err, tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestCalendarListIdentifiers(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/cal?str4=2024&str5=3", htmlResponder(calendarPage))

	cal, err := NewCalendar(cfg)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	cal.WithTransport(transport)

	ids, err := cal.ListIdentifiers(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []models.Identifier{
		"http://example.test/view?code=101",
		"http://example.test/view?code=102",
		"http://example.test/view?code=104",
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if got := cal.SpacFiltered(); got != 1 {
		t.Errorf("SpacFiltered() = %d, want 1", got)
	}
}

func TestCalendarRestartable(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	url := "http://example.test/cal?str4=2024&str5=3"
	transport.RegisterResponder("GET", url, htmlResponder(calendarPage))

	cal, err := NewCalendar(cfg)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	cal.WithTransport(transport)

	first, err := cal.ListIdentifiers(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	second, err := cal.ListIdentifiers(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("listings differ: %v vs %v", first, second)
	}
	if got := transport.GetCallCountInfo()["GET "+url]; got != 2 {
		t.Errorf("calendar fetched %d times, want 2", got)
	}
}

func TestCalendarDayLimit(t *testing.T) {
	cfg := testConfig()
	cfg.DayLimit = 10

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/cal?str4=2024&str5=3", htmlResponder(calendarPage))
	transport.RegisterResponder("GET", "http://example.test/cal?str4=2024&str5=2", htmlResponder(calendarPage))

	cal, err := NewCalendar(cfg)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	cal.WithTransport(transport)
	cal.now = func() time.Time {
		return time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)
	}

	current, err := cal.ListIdentifiers(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("list current month: %v", err)
	}
	if want := []models.Identifier{"http://example.test/view?code=101"}; !reflect.DeepEqual(current, want) {
		t.Errorf("current month ids = %v, want %v", current, want)
	}

	// Finished months ignore the cap.
	past, err := cal.ListIdentifiers(context.Background(), 2024, 2)
	if err != nil {
		t.Fatalf("list past month: %v", err)
	}
	if len(past) != 3 {
		t.Errorf("past month ids = %d, want 3", len(past))
	}
}

func TestCalendarServerError(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/cal?str4=2024&str5=3",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	cal, err := NewCalendar(cfg)
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	cal.WithTransport(transport)

	ids, err := cal.ListIdentifiers(context.Background(), 2024, 3)
	if ids != nil {
		t.Errorf("ids = %v, want nil", ids)
	}
	var unavailable *crawler.SourceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want SourceUnavailableError", err)
	}
	if unavailable.Month != 3 {
		t.Errorf("failed month = %d, want 3", unavailable.Month)
	}
}

func TestCalendarCancelledContext(t *testing.T) {
	cal, err := NewCalendar(testConfig())
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cal.ListIdentifiers(ctx, 2024, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

const detailPage = `<html><head><title>알파테크 | IPO</title></head><body>
<strong class="view_tit">알파테크</strong>
<table summary="기업개요">
<tr><td>시장구분</td><td>코스닥</td></tr>
<tr><td>업종</td><td>소프트웨어 개발</td></tr>
<tr><td>매출액</td><td>12,345 (백만원)</td></tr>
<tr><td>법인세비용차감전 계속사업이익</td><td>1,234</td></tr>
<tr><td>순이익</td><td>987</td></tr>
<tr><td>자본금</td><td>500</td></tr>
</table>
<table summary="공모정보">
<tr><td>총공모주식수</td><td>1,000,000 주</td></tr>
<tr><td>액면가</td><td>500 원</td></tr>
<tr><td>희망공모가액</td><td>10,000 ~ 12,000</td></tr>
<tr><td>확정공모가</td><td>12,000 원</td></tr>
<tr><td>공모금액</td><td>12,000 (백만원)</td></tr>
<tr><td>주간사</td><td>한국투자증권</td></tr>
</table>
<table summary="공모청약일정">
<tr><td>신규상장일</td><td>2024.03.15</td></tr>
<tr><td>기관경쟁률</td><td>1,234.56 : 1</td></tr>
<tr><td>우리사주조합</td><td>50,000주 (5%)</td></tr>
<tr><td>기관투자자</td><td>700,000주 (70%)</td></tr>
<tr><td>일반청약자</td><td>250,000주 (25%)</td></tr>
</table>
<table>
<tr><th>구분</th><th>유통가능물량</th><th>비율</th></tr>
<tr><td>최대주주</td><td>-</td><td>-</td></tr>
<tr><td>합계</td><td>400,000</td><td>40.00%</td></tr>
</table>
</body></html>`

func TestDetailFetch(t *testing.T) {
	cfg := testConfig()
	id := models.Identifier("http://example.test/view?code=101")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", string(id), htmlResponder(detailPage))

	det, err := NewDetail(cfg)
	if err != nil {
		t.Fatalf("new detail: %v", err)
	}
	det.WithTransport(transport)

	stock, err := det.FetchDetail(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if stock.ID != id {
		t.Errorf("ID = %s, want %s", stock.ID, id)
	}
	if stock.Name != "알파테크" {
		t.Errorf("Name = %q, want 알파테크", stock.Name)
	}
	if stock.MarketSegment != "코스닥" {
		t.Errorf("MarketSegment = %q, want 코스닥", stock.MarketSegment)
	}
	if stock.Sector != "소프트웨어 개발" {
		t.Errorf("Sector = %q", stock.Sector)
	}
	if stock.Revenue != 12345 {
		t.Errorf("Revenue = %d, want 12345", stock.Revenue)
	}
	if stock.ProfitPreTax != 1234 {
		t.Errorf("ProfitPreTax = %d, want 1234", stock.ProfitPreTax)
	}
	if stock.TotalShares != 1000000 {
		t.Errorf("TotalShares = %d, want 1000000", stock.TotalShares)
	}
	if stock.ParValue != 500 {
		t.Errorf("ParValue = %d, want 500", stock.ParValue)
	}
	if stock.DesiredPriceRange != "10,000 ~ 12,000" {
		t.Errorf("DesiredPriceRange = %q", stock.DesiredPriceRange)
	}
	if stock.ConfirmedPrice != 12000 {
		t.Errorf("ConfirmedPrice = %d, want 12000", stock.ConfirmedPrice)
	}
	if stock.Underwriter != "한국투자증권" {
		t.Errorf("Underwriter = %q", stock.Underwriter)
	}
	if stock.ListingDate != "2024.03.15" {
		t.Errorf("ListingDate = %q, want 2024.03.15", stock.ListingDate)
	}
	if stock.CompetitionRate != "1,234.56:1" {
		t.Errorf("CompetitionRate = %q, want 1,234.56:1", stock.CompetitionRate)
	}
	if stock.EmpShares != 50000 || stock.InstShares != 700000 || stock.RetailShares != 250000 {
		t.Errorf("allocation = %d/%d/%d, want 50000/700000/250000",
			stock.EmpShares, stock.InstShares, stock.RetailShares)
	}
	if stock.TradableSharesCount != "400,000" {
		t.Errorf("TradableSharesCount = %q, want 400,000", stock.TradableSharesCount)
	}
	if stock.TradableSharesPercent != "40.00%" {
		t.Errorf("TradableSharesPercent = %q, want 40.00%%", stock.TradableSharesPercent)
	}
	if stock.Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", stock.Status)
	}
}

func TestDetailNotFoundNoRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	id := models.Identifier("http://example.test/view?code=999")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", string(id), httpmock.NewStringResponder(http.StatusNotFound, ""))

	det, err := NewDetail(cfg)
	if err != nil {
		t.Fatalf("new detail: %v", err)
	}
	det.WithTransport(transport)

	_, err = det.FetchDetail(context.Background(), id)
	if got := crawler.Reason(err); got != models.ReasonNotFound {
		t.Errorf("Reason() = %s, want not_found", got)
	}
	if got := transport.GetCallCountInfo()["GET "+string(id)]; got != 1 {
		t.Errorf("fetched %d times, want 1", got)
	}
}

func TestDetailRetriesServerError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	id := models.Identifier("http://example.test/view?code=500")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", string(id), httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	det, err := NewDetail(cfg)
	if err != nil {
		t.Fatalf("new detail: %v", err)
	}
	det.WithTransport(transport)

	if _, err := det.FetchDetail(context.Background(), id); err == nil {
		t.Fatal("fetch should fail")
	}
	if got := transport.GetCallCountInfo()["GET "+string(id)]; got != 3 {
		t.Errorf("fetched %d times, want 3", got)
	}
}

func TestDetailParseFailureNoRetry(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	id := models.Identifier("http://example.test/view?code=102")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", string(id), htmlResponder("<html><body><p>점검중</p></body></html>"))

	det, err := NewDetail(cfg)
	if err != nil {
		t.Fatalf("new detail: %v", err)
	}
	det.WithTransport(transport)

	_, err = det.FetchDetail(context.Background(), id)
	if got := crawler.Reason(err); got != models.ReasonParseError {
		t.Errorf("Reason() = %s, want parse_error", got)
	}
	if got := transport.GetCallCountInfo()["GET "+string(id)]; got != 1 {
		t.Errorf("fetched %d times, want 1", got)
	}
}

func TestDetailCancelledContext(t *testing.T) {
	det, err := NewDetail(testConfig())
	if err != nil {
		t.Fatalf("new detail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := det.FetchDetail(ctx, "http://example.test/view?code=101"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
