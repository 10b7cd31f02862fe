// Package tgui builds Telegram messages for ParseMode="HTML".
//
// Every helper escapes its input unless the name says Raw. Builder assembles a
// multi-line message with the send options the bot uses everywhere (HTML, no
// link preview).
package tgui
