// Package pco はPlanning Center Online APIのクライアントを提供する。
// カーソル（nextリンク）ベースのページネーション、Basic認証、
// クライアント単位のレート制御を含む。
package pco

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/metrics"
	"github.com/hitoshi/pcosync/internal/model"
)

// defaultPageSize は1ページあたりのデフォルト取得件数。
const defaultPageSize = 100

// pageResponse はAPIの1ページ分のレスポンス。
type pageResponse struct {
	Data  []model.RawItem `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

// URLValidator はフェッチループが辿るURLの事前検証インターフェース。
// nextリンクはリモートのレスポンスに由来するため全URLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Client はPlanning Center APIのページネーション付きフェッチャー。
type Client struct {
	httpClient *http.Client
	validator  URLValidator
	limiter    *rate.Limiter
	metrics    metrics.SyncMetricsCollector
	logger     *slog.Logger
	pageSize   int
}

// NewClient はClientの新しいインスタンスを生成する。
// pageSizeが0以下の場合はデフォルト値100を使用する。
// limiterはPCO側のAPIクォータに合わせた送信レート制御に使用する。
func NewClient(
	httpClient *http.Client,
	validator URLValidator,
	limiter *rate.Limiter,
	collector metrics.SyncMetricsCollector,
	logger *slog.Logger,
	pageSize int,
) *Client {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		httpClient: httpClient,
		validator:  validator,
		limiter:    limiter,
		metrics:    collector,
		logger:     logger,
		pageSize:   pageSize,
	}
}

// FetchAll はエンドポイントの全ページを取得し、受理されたアイテムを
// ページ順で連結して返す。
//
// 終了条件:
//   - nextリンクが存在しない（正常終了、エラーなし）
//   - 転送エラー（ネットワーク障害・非2xx応答・デコード失敗）
//
// 転送エラー時は取得済みアイテムを破棄せず、蓄積分と
// *model.TransportError を併せて返す。呼び出し側は部分結果のまま
// パイプラインを継続できる。
func (c *Client) FetchAll(
	ctx context.Context,
	creds model.Credentials,
	def endpoint.Definition,
	filters []endpoint.Filter,
) ([]model.RawItem, error) {
	nextURL, err := c.buildFirstPageURL(def, filters)
	if err != nil {
		return nil, fmt.Errorf("リクエストURLの構築に失敗しました: %w", err)
	}

	var items []model.RawItem
	page := 0

	for nextURL != "" {
		if err := c.validator.ValidateURL(nextURL); err != nil {
			c.logger.Error("ページURLの検証に失敗しました",
				slog.String("endpoint", def.Name),
				slog.String("url", nextURL),
				slog.String("error", err.Error()),
			)
			return items, &model.TransportError{URL: nextURL, Err: err}
		}

		// PCO側のAPIクォータを超えないよう送信レートを制御する
		if err := c.limiter.Wait(ctx); err != nil {
			return items, &model.TransportError{URL: nextURL, Err: err}
		}

		resp, terr := c.fetchPage(ctx, creds, nextURL)
		if terr != nil {
			c.metrics.RecordTransportFailure(def.Name)
			c.logger.Warn("ページ取得に失敗したためフェッチを打ち切ります",
				slog.String("endpoint", def.Name),
				slog.String("url", nextURL),
				slog.Int("pages_fetched", page),
				slog.Int("items_accumulated", len(items)),
				slog.String("error", terr.Error()),
			)
			return items, terr
		}

		page++
		c.metrics.RecordPageFetched(def.Name)

		// ページ内の順序を保ったまま受理判定を適用する
		for _, item := range resp.Data {
			if def.Accept != nil && !def.Accept(item) {
				continue
			}
			items = append(items, item)
		}

		if resp.Links.Next == nil {
			break
		}
		nextURL = *resp.Links.Next
	}

	c.logger.Info("フェッチが完了しました",
		slog.String("endpoint", def.Name),
		slog.Int("pages", page),
		slog.Int("items", len(items)),
	)

	return items, nil
}

// buildFirstPageURL は開始ページのURLを構築する。
// デフォルトのページサイズを設定した後にフィルタを適用するため、
// フィルタによるper_pageの上書きが優先される。
func (c *Client) buildFirstPageURL(def endpoint.Definition, filters []endpoint.Filter) (string, error) {
	u, err := url.Parse(def.BaseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("per_page", fmt.Sprintf("%d", c.pageSize))
	for _, f := range filters {
		f.Apply(q)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// fetchPage は1ページ分を取得してデコードする。
// 失敗は全て*model.TransportErrorとして返す。
func (c *Client) fetchPage(ctx context.Context, creds model.Credentials, pageURL string) (*pageResponse, *model.TransportError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &model.TransportError{URL: pageURL, Err: err}
	}

	// Authorization: Basic base64(client_id:client_secret)
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pcosync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.TransportError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &model.TransportError{URL: pageURL, Status: resp.StatusCode}
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &model.TransportError{URL: pageURL, Err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}

	return &page, nil
}
