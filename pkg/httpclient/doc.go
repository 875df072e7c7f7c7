// Package httpclient はサーバーAPIへのJSON通信を行うHTTPクライアントを提供する。
//
// Bearerトークンによる認証と、タイムアウト付きのGET/POST/PUT/DELETEをサポートする。
package httpclient
